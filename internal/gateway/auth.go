package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const tokenHeader = "X-Buckets-Token"

// writeTokens are the accepted values of tokenHeader. An empty set leaves
// write routes open.
type writeTokens [][]byte

// parseWriteTokens splits a comma separated token list, dropping blanks.
func parseWriteTokens(raw string) writeTokens {
	var tokens writeTokens
	for _, part := range strings.Split(raw, ",") {
		if token := strings.TrimSpace(part); token != "" {
			tokens = append(tokens, []byte(token))
		}
	}
	return tokens
}

// accepts compares candidate against every token in constant time.
func (ts writeTokens) accepts(candidate string) bool {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return false
	}
	matched := 0
	for _, token := range ts {
		matched |= subtle.ConstantTimeCompare(token, []byte(candidate))
	}
	return matched == 1
}

func (s *Server) requireWriteAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		tokens := s.tokens
		s.mu.Unlock()

		if len(tokens) > 0 && !tokens.accepts(r.Header.Get(tokenHeader)) {
			s.log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("write rejected without valid token")
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid gateway token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

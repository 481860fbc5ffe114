package gateway

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWriteTokens(t *testing.T) {
	tokens := parseWriteTokens(" current , next-token ,,  ")
	require.Len(t, tokens, 2)
	assert.Equal(t, "current", string(tokens[0]))
	assert.Equal(t, "next-token", string(tokens[1]))
	assert.Empty(t, parseWriteTokens(" , "))
}

func TestWriteTokensAcceptRotatingTokens(t *testing.T) {
	tokens := parseWriteTokens("current-token, next-token")

	cases := []struct {
		name     string
		token    string
		accepted bool
	}{
		{name: "current token", token: "current-token", accepted: true},
		{name: "next token", token: "next-token", accepted: true},
		{name: "padded token", token: "  next-token ", accepted: true},
		{name: "unknown token", token: "wrong-token", accepted: false},
		{name: "prefix of token", token: "current", accepted: false},
		{name: "missing token", token: "", accepted: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.accepted, tokens.accepts(tc.token))
		})
	}
	assert.False(t, writeTokens(nil).accepts("anything"))
}

func TestWritesOpenWithoutConfiguredToken(t *testing.T) {
	s := newTestServer(t)
	s.SetAuthToken(" , ")

	rr := do(t, s, http.MethodPut, "/v1/buckets/open", "", nil)
	assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
}

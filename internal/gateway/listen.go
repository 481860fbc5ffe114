package gateway

import (
	"fmt"
	"net"
	"strings"

	"cloudbuckets/internal/config"
)

// ValidateListenAddress trims addr, falls back to the configured default
// and refuses hosts other than loopback unless allowRemote is set.
func ValidateListenAddress(addr string, allowRemote bool) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		addr = config.DefaultGatewayListen
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("gateway listen address %q: %w", addr, err)
	}
	if !allowRemote && !loopbackHost(host) {
		return "", fmt.Errorf("gateway listen address %q is not loopback (set gateway.allow_remote or pass --allow-remote)", addr)
	}
	return addr, nil
}

func loopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

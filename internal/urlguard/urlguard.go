// Package urlguard rejects user-supplied URLs that would make the server
// fetch from itself, its private network or a cloud metadata endpoint.
package urlguard

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

var (
	ErrScheme    = errors.New("invalid URL scheme")
	ErrNoHost    = errors.New("invalid URL: no hostname")
	ErrForbidden = errors.New("destination not allowed")
)

var localHosts = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
	"::1":       true,
}

var metadataHosts = []string{
	"169.254.169.254",
	"metadata.google.internal",
	"metadata",
}

// Validate returns nil when rawURL is an http(s) URL pointing at a public host.
// Hostnames are not resolved.
func Validate(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parsing URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %q", ErrScheme, u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return ErrNoHost
	}

	if localHosts[host] {
		return fmt.Errorf("%w: localhost", ErrForbidden)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() ||
			addr.IsLinkLocalMulticast() || addr.IsUnspecified() {
			return fmt.Errorf("%w: private address %s", ErrForbidden, addr)
		}
		return nil
	}

	for _, blocked := range metadataHosts {
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return fmt.Errorf("%w: metadata endpoint %s", ErrForbidden, host)
		}
	}

	return nil
}

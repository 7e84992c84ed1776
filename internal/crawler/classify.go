package crawler

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Classify decides the Kind of candidate discovered on the origin page through
// an element with the given tag. Anything outside the origin's authority is
// External; same-authority anchors are resources and everything else is an
// asset.
func Classify(origin, candidate *url.URL, tag string) Kind {
	if !sameAuthority(origin, candidate) {
		return KindExternal
	}
	if strings.EqualFold(tag, "a") {
		return KindResource
	}
	return KindAsset
}

func sameAuthority(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	if !strings.EqualFold(a.Scheme, b.Scheme) {
		return false
	}
	if !strings.EqualFold(a.Hostname(), b.Hostname()) {
		return false
	}
	return effectivePort(a) == effectivePort(b)
}

func effectivePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	return defaultPort(u.Scheme)
}

func defaultPort(scheme string) string {
	switch strings.ToLower(scheme) {
	case "http":
		return "80"
	case "https":
		return "443"
	}
	return ""
}

// ResolveReference resolves raw against base and returns the absolute URL
// used as frontier identity. Fragments are dropped. Only http and https
// results are accepted.
func ResolveReference(base *url.URL, raw string) (*url.URL, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || base == nil {
		return nil, false
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}
	resolved := base.ResolveReference(ref)
	switch strings.ToLower(resolved.Scheme) {
	case "http", "https":
	default:
		return nil, false
	}
	if resolved.Host == "" {
		return nil, false
	}
	return Canonical(resolved), true
}

// ParseSeed validates an operator-supplied seed URL.
func ParseSeed(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse seed url: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("seed url %q must be absolute", raw)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, fmt.Errorf("seed url %q must use http or https", raw)
	}
	return Canonical(u), nil
}

// Canonical returns the frontier identity form of u: scheme and host
// lowercased, the scheme's default port dropped, an empty path turned into
// "/" and the fragment removed. u is not modified.
func Canonical(u *url.URL) *url.URL {
	if u == nil {
		return nil
	}
	c := *u
	c.Scheme = strings.ToLower(c.Scheme)
	c.Fragment = ""
	c.RawFragment = ""
	if c.Host != "" {
		host := strings.ToLower(c.Hostname())
		port := c.Port()
		if port == defaultPort(c.Scheme) {
			port = ""
		}
		switch {
		case port != "":
			c.Host = net.JoinHostPort(host, port)
		case strings.Contains(host, ":"):
			c.Host = "[" + host + "]"
		default:
			c.Host = host
		}
	}
	if c.Opaque == "" && c.Path == "" {
		c.Path = "/"
		c.RawPath = ""
	}
	return &c
}

package browser

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidateURL refuses authorization URLs a launcher should not open: any
// scheme other than https (http only for loopback hosts), and hosts outside
// allowHosts when the list is non-empty. Subdomains of an allowed host pass.
func ValidateURL(raw string, allowHosts []string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("authorization url is empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid authorization url: %w", err)
	}

	host := strings.ToLower(strings.TrimSpace(u.Hostname()))
	if host == "" {
		return fmt.Errorf("authorization url missing host")
	}

	scheme := strings.ToLower(strings.TrimSpace(u.Scheme))
	if scheme != "https" && !(scheme == "http" && IsLoopbackHost(host)) {
		return fmt.Errorf("refusing authorization url scheme %q (host=%q)", scheme, host)
	}

	// Loopback pages are our own listener.
	if IsLoopbackHost(host) || len(allowHosts) == 0 {
		return nil
	}

	for _, allowed := range allowHosts {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if allowed == "" {
			continue
		}
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return nil
		}
	}

	return fmt.Errorf("refusing authorization url host %q (not allowlisted)", host)
}

// IsLoopbackHost reports whether host is localhost or a loopback IP.
func IsLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

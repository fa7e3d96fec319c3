package validate

import (
	"net"
	"net/url"

	witherrors "github.com/dkmnx/with/internal/errors"
)

// ValidateVaultURL checks a remote vault endpoint. Only HTTPS is accepted and
// loopback, link-local and private hosts are refused.
func ValidateVaultURL(rawURL string) error {
	if rawURL == "" {
		return witherrors.NewError(witherrors.ValidationError, "vault URL cannot be empty")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return witherrors.WrapError(witherrors.ValidationError, "invalid vault URL", err).
			WithContext("url", rawURL)
	}

	if parsed.Scheme != "https" {
		return witherrors.NewError(witherrors.ValidationError, "vault URL must use https").
			WithContext("url", rawURL)
	}

	host := parsed.Hostname()
	if host == "" {
		return witherrors.NewError(witherrors.ValidationError, "vault URL has no host").
			WithContext("url", rawURL)
	}

	if isBlockedHost(host) {
		return witherrors.NewError(witherrors.ValidationError, "vault URL points to a blocked host").
			WithContext("url", rawURL)
	}

	return nil
}

func isBlockedHost(host string) bool {
	blockedHosts := []string{
		"localhost",
		"127.0.0.1",
		"::1",
	}

	for _, blocked := range blockedHosts {
		if host == blocked {
			return true
		}
	}

	ip := net.ParseIP(host)
	if ip != nil {
		return ip.IsLoopback() || isPrivateIP(ip)
	}

	return false
}

func isPrivateIP(ip net.IP) bool {
	privateRanges := []net.IPNet{
		{IP: net.ParseIP("10.0.0.0"), Mask: net.CIDRMask(8, 32)},
		{IP: net.ParseIP("172.16.0.0"), Mask: net.CIDRMask(12, 32)},
		{IP: net.ParseIP("192.168.0.0"), Mask: net.CIDRMask(16, 32)},
		{IP: net.ParseIP("169.254.0.0"), Mask: net.CIDRMask(16, 32)},
	}

	for _, r := range privateRanges {
		if r.Contains(ip) {
			return true
		}
	}

	return false
}

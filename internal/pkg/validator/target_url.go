package validator

import (
	"errors"
	"net"
	"net/url"
	"strings"
)

// Hosts that point back at the operator's own machine or a developer
// tunnel. Fine while integrating locally, rejected in production.
var tunnelSuffixes = []string{
	".ngrok.io", ".ngrok-free.app", ".ngrok.app",
	".loca.lt", ".localhost.run", ".serveo.net",
	".trycloudflare.com", ".localtunnel.me",
}

func ValidateTargetURL(raw string, allowLocal bool) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.New("target url is not a valid URL")
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("target url must use http or https")
	}

	host := u.Hostname()
	if host == "" {
		return errors.New("target url must be absolute")
	}

	if allowLocal {
		return nil
	}

	if isLoopbackHost(host) {
		return errors.New("loopback target urls are not allowed")
	}

	lower := strings.ToLower(host)
	for _, suffix := range tunnelSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return errors.New("tunnel target urls are not allowed")
		}
	}

	return nil
}

func isLoopbackHost(host string) bool {
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsUnspecified()
	}
	return false
}

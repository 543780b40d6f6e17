// Package endpoint checks provider base URLs before an API key is sent to them.
package endpoint

import (
	"fmt"
	"net/url"
	"strings"
)

// Policy describes one provider's acceptable base URLs. Section names the
// config block ("embedding", "narration") used in error messages.
type Policy struct {
	Section      string
	DefaultURL   string
	DefaultHosts []string
}

// Normalize trims the URL and its trailing slashes; empty means DefaultURL.
func (p Policy) Normalize(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = p.DefaultURL
	}
	return strings.TrimRight(baseURL, "/")
}

// Validate requires an absolute https URL without userinfo, query or
// fragment whose host is in allowedHosts, or in DefaultHosts when
// allowedHosts has no usable entry.
func (p Policy) Validate(baseURL string, allowedHosts []string) error {
	baseURL = p.Normalize(baseURL)
	field := p.Section + ".base_url"

	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", field, err)
	}
	if !u.IsAbs() || u.Hostname() == "" {
		return fmt.Errorf("invalid %s %q: absolute URL with host is required", field, baseURL)
	}
	if u.User != nil {
		return fmt.Errorf("invalid %s %q: userinfo is not allowed", field, baseURL)
	}
	if u.RawQuery != "" || u.ForceQuery || u.Fragment != "" {
		return fmt.Errorf("invalid %s %q: query and fragment are not allowed", field, baseURL)
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return fmt.Errorf("invalid %s %q: https is required", field, baseURL)
	}

	host := strings.ToLower(u.Hostname())
	if _, ok := p.Hosts(allowedHosts)[host]; !ok {
		return fmt.Errorf("invalid %s %q: host %q is not in %s.allowed_hosts", field, baseURL, host, p.Section)
	}
	return nil
}

// Hosts reduces configured entries to bare lowercase host names. Schemes,
// ports and slashes are stripped.
func (p Policy) Hosts(allowedHosts []string) map[string]struct{} {
	out := hostSet(allowedHosts)
	if len(out) == 0 {
		return hostSet(p.DefaultHosts)
	}
	return out
}

func hostSet(hosts []string) map[string]struct{} {
	out := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		v := strings.ToLower(strings.TrimSpace(h))
		v = strings.TrimPrefix(v, "http://")
		v = strings.TrimPrefix(v, "https://")
		v = strings.Trim(v, "/")
		if i := strings.IndexAny(v, ":/"); i >= 0 {
			v = v[:i]
		}
		if v == "" {
			continue
		}
		out[v] = struct{}{}
	}
	return out
}

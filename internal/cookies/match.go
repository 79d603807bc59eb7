package cookies

import (
	"net/url"
	"strings"
)

// MatchesDomain reports whether cookieDomain applies to the host of u.
// A leading dot matches the host with exactly one label removed, so
// ".example.com" matches "sub.example.com" but not "a.sub.example.com".
// Without a leading dot the domain must be a dot-separated suffix of the host.
func MatchesDomain(cookieDomain string, u *url.URL) bool {
	if u == nil || cookieDomain == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	domain := strings.ToLower(cookieDomain)
	if host == "" {
		return false
	}
	if host == domain {
		return true
	}
	if domain[0] == '.' {
		_, parent, ok := strings.Cut(host, ".")
		return ok && parent == domain[1:]
	}
	idx := len(host) - len(domain)
	return idx > 0 && strings.HasSuffix(host, domain) && host[idx-1] == '.'
}

// MatchesPath reports whether cookiePath applies to the path of u. An empty
// cookie path always matches.
func MatchesPath(cookiePath string, u *url.URL) bool {
	if cookiePath == "" {
		return true
	}
	if u == nil {
		return false
	}
	reqPath := u.Path
	if reqPath == "" {
		reqPath = "/"
	}
	if reqPath == cookiePath {
		return true
	}
	if strings.HasPrefix(reqPath, cookiePath) {
		if strings.HasSuffix(cookiePath, "/") {
			return true
		}
		if !strings.Contains(cookiePath[1:], "/") && reqPath[len(cookiePath)] == '/' {
			return true
		}
	}
	return scanPath(cookiePath, reqPath)
}

// scanPath walks the request path to the first '/' that has no counterpart at
// the same offset of cookiePath and matches when the request path up to that
// point starts with cookiePath. This accepts "/a/b" for "/a/bc/d".
func scanPath(cookiePath, reqPath string) bool {
	for i := 0; i < len(reqPath); i++ {
		if reqPath[i] != '/' {
			continue
		}
		if i < len(cookiePath) && cookiePath[i] == '/' {
			continue
		}
		return strings.HasPrefix(reqPath[:i], cookiePath)
	}
	return false
}

// DefaultPath computes the RFC 6265 default-path of rawURL: the URL path up to
// but not including its last '/', or "/" when there is nothing before it.
func DefaultPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "/"
	}
	return defaultPath(u)
}

func defaultPath(u *url.URL) string {
	if u == nil {
		return "/"
	}
	p := u.Path
	if p == "" || p[0] != '/' {
		return "/"
	}
	i := strings.LastIndexByte(p, '/')
	if i == 0 {
		return "/"
	}
	return p[:i]
}

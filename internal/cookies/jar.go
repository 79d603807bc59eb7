package cookies

import (
	"net/url"
	"strconv"
	"strings"
)

// Jar holds cookies parsed from a Cookie or Set-Cookie header, optionally
// bound to the URL they were received from. A Jar is not safe for concurrent
// use.
type Jar struct {
	url     *url.URL
	cookies []*Cookie
}

// NewJar parses header and binds the jar to rawURL. Cookies without domain or
// path take them from the URL. An empty or unparsable URL leaves the jar
// unbound.
func NewJar(header, rawURL string) *Jar {
	j := &Jar{url: parseURL(rawURL), cookies: Parse(header)}
	j.applyDefaults()
	return j
}

func parseURL(raw string) *url.URL {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil
	}
	return u
}

func (j *Jar) URL() *url.URL {
	return j.url
}

func (j *Jar) Cookies() []*Cookie {
	out := make([]*Cookie, len(j.cookies))
	copy(out, j.cookies)
	return out
}

func (j *Jar) Set(cookies []*Cookie) {
	j.cookies = append([]*Cookie(nil), cookies...)
}

func (j *Jar) Len() int {
	return len(j.cookies)
}

func (j *Jar) MatchesDomain(cookieDomain string) bool {
	return MatchesDomain(cookieDomain, j.url)
}

func (j *Jar) MatchesPath(cookiePath string) bool {
	return MatchesPath(cookiePath, j.url)
}

// String renders the cookies as a Cookie request header value.
func (j *Jar) String() string {
	parts := make([]string, 0, len(j.cookies))
	for _, c := range j.cookies {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, "; ")
}

// Parse reads a Cookie or Set-Cookie header. Attribute segments update the
// most recent cookie; segments that do not form a valid cookie are skipped.
func Parse(text string) []*Cookie {
	var out []*Cookie
	for _, segment := range strings.Split(text, ";") {
		name, value, _ := strings.Cut(segment, "=")
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)

		if isAttribute(name) {
			if len(out) > 0 {
				applyAttribute(out[len(out)-1], strings.ToLower(name), value)
			}
			continue
		}

		c, err := New(unescape(name), unescape(value), Options{})
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	return out
}

func isAttribute(name string) bool {
	switch strings.ToLower(name) {
	case "path", "domain", "max-age", "expires", "secure", "httponly":
		return true
	}
	return false
}

func applyAttribute(c *Cookie, name, value string) {
	switch name {
	case "path":
		c.Path = value
	case "domain":
		c.SetDomain(value)
	case "max-age":
		if seconds, ok := parseSeconds(value); ok {
			c.SetMaxAge(seconds)
		}
	case "expires":
		if _, ok := c.MaxAge(); ok {
			return
		}
		c.SetExpiresText(value)
	case "secure":
		c.Secure = true
	case "httponly":
		c.HTTPOnly = true
	}
}

func parseSeconds(value string) (int64, bool) {
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	return int64(f), true
}

func unescape(s string) string {
	out, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return out
}

func (j *Jar) applyDefaults() {
	if j.url == nil {
		return
	}
	host := strings.ToLower(j.url.Hostname())
	path := defaultPath(j.url)
	for _, c := range j.cookies {
		if c.Path == "" {
			c.Path = path
		}
		if c.Domain() == "" {
			c.SetDomain(host)
			c.HostOnly = true
		}
	}
}

// Filter drops cookies that do not apply to the bound URL and returns them.
// Cookies without a domain take the URL host and are kept as host-only.
func (j *Jar) Filter() []*Cookie {
	if j.url == nil {
		return nil
	}
	host := strings.ToLower(j.url.Hostname())
	path := defaultPath(j.url)

	var kept, removed []*Cookie
	for _, c := range j.cookies {
		if c.Path == "" {
			c.Path = path
		}
		if c.Domain() == "" {
			c.SetDomain(host)
			c.HostOnly = true
			kept = append(kept, c)
			continue
		}
		if j.MatchesDomain(c.Domain()) && j.MatchesPath(c.Path) {
			kept = append(kept, c)
			continue
		}
		removed = append(removed, c)
	}
	j.cookies = kept
	return removed
}

// Merge moves the cookies of other into j. An incoming cookie replaces every
// existing cookie with the same name when its domain and path apply to the
// jar's URL; the replaced cookie's creation time, and any copyKeys, are
// carried over, with the last match winning. Incoming cookies with an empty
// value are treated as deletions and are not added.
func (j *Jar) Merge(other *Jar, copyKeys ...string) {
	if other == nil || len(other.cookies) == 0 {
		return
	}
	for _, in := range other.cookies {
		if !j.MatchesDomain(in.Domain()) || !j.MatchesPath(in.Path) {
			continue
		}
		for i := 0; i < len(j.cookies); {
			existing := j.cookies[i]
			if existing.Name != in.Name {
				i++
				continue
			}
			in.Created = existing.Created
			for _, key := range copyKeys {
				copyField(in, existing, key)
			}
			j.cookies = append(j.cookies[:i], j.cookies[i+1:]...)
		}
	}
	for _, in := range other.cookies {
		if in.Value == "" {
			continue
		}
		j.cookies = append(j.cookies, in)
	}
}

func copyField(dst, src *Cookie, key string) {
	switch strings.ToLower(key) {
	case "created":
		dst.Created = src.Created
	case "lastaccess":
		dst.LastAccess = src.LastAccess
	case "value":
		dst.Value = src.Value
	case "path":
		dst.Path = src.Path
	case "domain":
		hostOnly := src.HostOnly
		dst.SetDomain(src.domain)
		dst.HostOnly = hostOnly
	case "expires":
		dst.expires = src.expires
	case "max-age", "maxage":
		dst.maxAge, dst.hasMaxAge = src.maxAge, src.hasMaxAge
		dst.expires = src.expires
	case "secure":
		dst.Secure = src.Secure
	case "httponly":
		dst.HTTPOnly = src.HTTPOnly
	case "hostonly":
		dst.HostOnly = src.HostOnly
	case "persistent":
		dst.Persistent = src.Persistent
	}
}

// ClearExpired removes and returns the cookies whose expiry is at or before now.
func (j *Jar) ClearExpired() []*Cookie {
	at := nowMillis()
	var kept, removed []*Cookie
	for _, c := range j.cookies {
		if c.Expired(at) {
			removed = append(removed, c)
			continue
		}
		kept = append(kept, c)
	}
	j.cookies = kept
	return removed
}

// Package cookies implements RFC 6265 shaped cookie parsing, matching and
// merging for cookies bound to a request URL. Several matching rules keep
// legacy behavior that differs from the RFC; see MatchesDomain and
// MatchesPath.
package cookies

import (
	"encoding/json"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/unkn0wn-root/harkit/internal/errdef"
)

const (
	// NeverExpires is the latest representable date, used for session cookies.
	NeverExpires int64 = 8_640_000_000_000_000
	// AlreadyExpired is stored when max-age is zero or negative.
	AlreadyExpired int64 = -NeverExpires

	invalidExpiry int64 = math.MinInt64
)

var now = time.Now

func nowMillis() int64 {
	return now().UnixMilli()
}

var expiresLayouts = []string{
	http.TimeFormat,
	"Mon, 02-Jan-2006 15:04:05 GMT",
	time.RFC850,
	time.RFC1123,
	time.RFC1123Z,
	time.ANSIC,
	time.RFC3339Nano,
}

type Options struct {
	Domain   string
	Path     string
	Expires  *time.Time
	MaxAge   *int64
	Secure   bool
	HTTPOnly bool
}

// Cookie is a single cookie. Times are epoch milliseconds.
type Cookie struct {
	Name       string
	Value      string
	Path       string
	Secure     bool
	HTTPOnly   bool
	HostOnly   bool
	Persistent bool
	Created    int64
	LastAccess int64

	domain    string
	expires   int64
	maxAge    int64
	hasMaxAge bool
}

func New(name, value string, opts Options) (*Cookie, error) {
	if name == "" || !validContent(name) {
		return nil, errdef.New(errdef.CodeCookie, "invalid cookie name %q", name)
	}
	if value != "" && !validContent(value) {
		return nil, errdef.New(errdef.CodeCookie, "invalid value for cookie %q", name)
	}
	if opts.Path != "" && !validContent(opts.Path) {
		return nil, errdef.New(errdef.CodeCookie, "invalid path for cookie %q", name)
	}
	if opts.Domain != "" && !validContent(opts.Domain) {
		return nil, errdef.New(errdef.CodeCookie, "invalid domain for cookie %q", name)
	}

	ts := nowMillis()
	c := &Cookie{
		Name:       name,
		Value:      value,
		Path:       opts.Path,
		Secure:     opts.Secure,
		HTTPOnly:   opts.HTTPOnly,
		Created:    ts,
		LastAccess: ts,
	}
	switch {
	case opts.MaxAge != nil:
		c.SetMaxAge(*opts.MaxAge)
	case opts.Expires != nil:
		c.SetExpiresTime(*opts.Expires)
	default:
		c.Persistent = false
		c.expires = NeverExpires
	}
	if opts.Domain != "" {
		c.SetDomain(opts.Domain)
		c.HostOnly = true
	} else {
		c.HostOnly = false
	}
	return c, nil
}

// validContent accepts visible ASCII, space and obs-text (U+0080..U+00FF),
// rejecting ';', ',' and surrounding whitespace.
func validContent(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == ' ' || s[len(s)-1] == ' ' {
		return false
	}
	for _, r := range s {
		switch {
		case r == ';' || r == ',':
			return false
		case r >= 0x20 && r <= 0x7e:
		case r >= 0x80 && r <= 0xff:
		default:
			return false
		}
	}
	return true
}

func (c *Cookie) Domain() string {
	return c.domain
}

// SetDomain stores the lower-cased domain. An explicitly set domain makes the
// cookie apply to subdomains, so HostOnly is cleared.
func (c *Cookie) SetDomain(domain string) {
	c.domain = strings.ToLower(strings.TrimSpace(domain))
	c.HostOnly = false
}

// Expires returns the expiry in epoch milliseconds and whether it holds a
// valid date.
func (c *Cookie) Expires() (int64, bool) {
	if c.expires == invalidExpiry {
		return 0, false
	}
	return c.expires, true
}

func (c *Cookie) SetExpires(ms int64) {
	c.expires = ms
	c.Persistent = true
}

func (c *Cookie) SetExpiresTime(t time.Time) {
	c.SetExpires(t.UnixMilli())
}

// SetExpiresText parses a cookie date. Unparsable text leaves the cookie with
// an invalid expiry that never counts as expired.
func (c *Cookie) SetExpiresText(text string) {
	text = strings.TrimSpace(text)
	for _, layout := range expiresLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			c.SetExpiresTime(t)
			return
		}
	}
	c.expires = invalidExpiry
	c.Persistent = true
}

func (c *Cookie) MaxAge() (int64, bool) {
	return c.maxAge, c.hasMaxAge
}

// SetMaxAge recomputes the expiry: non-positive values expire the cookie,
// positive values count seconds from now.
func (c *Cookie) SetMaxAge(seconds int64) {
	c.maxAge = seconds
	c.hasMaxAge = true
	if seconds <= 0 {
		c.expires = AlreadyExpired
	} else {
		c.expires = nowMillis() + seconds*1000
	}
	c.Persistent = true
}

func (c *Cookie) Expired(atMillis int64) bool {
	exp, ok := c.Expires()
	return ok && exp <= atMillis
}

// String renders the Cookie request header form.
func (c *Cookie) String() string {
	return c.Name + "=" + c.Value
}

// Header renders the Set-Cookie form.
func (c *Cookie) Header() string {
	var b strings.Builder
	b.WriteString(c.String())
	if c.expires != 0 {
		exp, ok := c.Expires()
		if !ok {
			exp = 0
		}
		b.WriteString("; expires=")
		b.WriteString(time.UnixMilli(exp).UTC().Format(http.TimeFormat))
	}
	if c.Path != "" {
		b.WriteString("; path=")
		b.WriteString(c.Path)
	}
	if c.domain != "" {
		b.WriteString("; domain=")
		b.WriteString(c.domain)
	}
	if c.HTTPOnly {
		b.WriteString("; httpOnly=true")
	}
	return b.String()
}

type cookieJSON struct {
	Name       string `json:"name"`
	Value      string `json:"value"`
	Domain     string `json:"domain,omitempty"`
	Path       string `json:"path,omitempty"`
	Expires    *int64 `json:"expires,omitempty"`
	MaxAge     *int64 `json:"max-age,omitempty"`
	Secure     bool   `json:"secure"`
	HTTPOnly   bool   `json:"httpOnly"`
	HostOnly   bool   `json:"hostOnly"`
	Persistent bool   `json:"persistent"`
	Created    int64  `json:"created"`
	LastAccess int64  `json:"lastAccess"`
}

func (c *Cookie) MarshalJSON() ([]byte, error) {
	out := cookieJSON{
		Name:       c.Name,
		Value:      c.Value,
		Domain:     c.domain,
		Path:       c.Path,
		Secure:     c.Secure,
		HTTPOnly:   c.HTTPOnly,
		HostOnly:   c.HostOnly,
		Persistent: c.Persistent,
		Created:    c.Created,
		LastAccess: c.LastAccess,
	}
	if exp, ok := c.Expires(); ok {
		out.Expires = &exp
	}
	if age, ok := c.MaxAge(); ok {
		out.MaxAge = &age
	}
	return json.Marshal(out)
}

// Compare reports whether a and b address the same cookie slot.
func Compare(a, b *Cookie) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.domain == b.domain && a.Path == b.Path && a.Name == b.Name
}

package httpclient

import (
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	"github.com/unkn0wn-root/harkit/internal/authcache"
	"github.com/unkn0wn-root/harkit/internal/headers"
)

// AuthSpec describes how to authenticate a request. Params keys depend on
// Type: username/password for basic, token for bearer, name/value/placement
// for apikey, header/value for header.
type AuthSpec struct {
	Type   string
	Params map[string]string
}

// ApplyAuth sets credentials on the outgoing header table unless it already
// carries them. An apikey placed in the query rewrites u. Basic credentials
// are remembered per origin in cache, and a request without an explicit
// AuthSpec reuses what the cache holds for its origin.
func ApplyAuth(u *url.URL, hdrs *headers.Table, auth *AuthSpec, cache *authcache.Cache) {
	if u == nil || hdrs == nil {
		return
	}
	origin := authcache.Origin(u)

	if auth == nil || len(auth.Params) == 0 {
		if e, ok := cache.Get(origin); ok && e.Scheme == authcache.SchemeBasic &&
			!hdrs.Has("Authorization") {
			hdrs.Set("Authorization", basicAuth(e.Username, e.Password))
		}
		return
	}

	switch strings.ToLower(auth.Type) {
	case "basic":
		user := auth.Params["username"]
		pass := auth.Params["password"]
		if !hdrs.Has("Authorization") {
			hdrs.Set("Authorization", basicAuth(user, pass))
		}
		cache.Put(origin, authcache.Entry{
			Scheme:   authcache.SchemeBasic,
			Username: user,
			Password: pass,
		})
	case "bearer":
		if !hdrs.Has("Authorization") {
			hdrs.Set("Authorization", "Bearer "+auth.Params["token"])
		}
	case "apikey", "api-key":
		name := auth.Params["name"]
		value := auth.Params["value"]
		if strings.EqualFold(auth.Params["placement"], "query") {
			q := u.Query()
			q.Set(name, value)
			u.RawQuery = q.Encode()
			return
		}
		if name == "" {
			name = "X-API-Key"
		}
		if !hdrs.Has(name) {
			hdrs.Set(name, value)
		}
	case "header":
		name := auth.Params["header"]
		if name != "" && !hdrs.Has(name) {
			hdrs.Set(name, auth.Params["value"])
		}
	}
}

func basicAuth(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

// forgetRejected drops cached basic credentials the server refused.
func forgetRejected(req *http.Request, status int, cache *authcache.Cache) {
	if status != http.StatusUnauthorized || req == nil || req.URL == nil {
		return
	}
	cache.Delete(authcache.Origin(req.URL))
}

package main

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/unkn0wn-root/harkit/internal/cookies"
	"github.com/unkn0wn-root/harkit/internal/errdef"
)

func (a *app) runCookies(args []string) error {
	fs := a.flags("cookies")
	target := fs.String("url", "", "request URL the cookies are evaluated against")
	cookieHeader := fs.String("cookie", "", "existing Cookie header value")
	var setCookies listFlag
	fs.Var(&setCookies, "set-cookie", "Set-Cookie header value to merge (repeatable)")
	asJSON := fs.Bool("json", false, "print the matching cookies as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*target) == "" {
		return errdef.New(errdef.CodeCookie, "-url is required")
	}

	jar := cookies.NewJar(*cookieHeader, *target)
	if jar.URL() == nil {
		return errdef.New(errdef.CodeCookie, "invalid url %q", *target)
	}
	for _, sc := range setCookies {
		jar.Merge(cookies.NewJar(sc, *target))
	}
	expired := jar.ClearExpired()
	removed := jar.Filter()

	if *asJSON {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(jar.Cookies())
	}

	fmt.Fprintf(a.stdout, "Cookie: %s\n", jar.String())
	for _, c := range jar.Cookies() {
		fmt.Fprintf(a.stdout, "Set-Cookie: %s\n", c.Header())
	}
	for _, c := range expired {
		fmt.Fprintf(a.stdout, "# expired: %s\n", c.Name)
	}
	for _, c := range removed {
		fmt.Fprintf(a.stdout, "# not sent: %s (domain %s, path %s)\n", c.Name, c.Domain(), c.Path)
	}
	return nil
}

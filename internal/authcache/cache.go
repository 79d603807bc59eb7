// Package authcache remembers credentials per origin for the lifetime of an
// application session.
package authcache

import (
	"net"
	"net/url"
	"strings"
	"sync"
	"time"
)

type Scheme string

const (
	SchemeBasic Scheme = "basic"
	SchemeNTLM  Scheme = "ntlm"
)

type Entry struct {
	Scheme   Scheme
	Username string
	Password string
	// Domain is the NTLM domain; empty for basic.
	Domain string
	Stored time.Time
}

// Cache is safe for concurrent use. Create one per session and pass it to
// whatever applies authentication; there is no package level instance.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

func New() *Cache {
	return &Cache{entries: make(map[string]Entry), now: time.Now}
}

// Origin normalises u to scheme://host[:port], dropping default ports.
func Origin(u *url.URL) string {
	if u == nil || u.Host == "" {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	switch {
	case port != "":
		host = net.JoinHostPort(host, port)
	case strings.Contains(host, ":"):
		host = "[" + host + "]"
	}
	return scheme + "://" + host
}

func (c *Cache) Get(origin string) (Entry, bool) {
	if c == nil || origin == "" {
		return Entry{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[origin]
	return e, ok
}

func (c *Cache) Put(origin string, e Entry) {
	if c == nil || origin == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e.Stored.IsZero() {
		e.Stored = c.now()
	}
	c.entries[origin] = e
}

func (c *Cache) Delete(origin string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, origin)
	c.mu.Unlock()
}

func (c *Cache) Clear() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[string]Entry)
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

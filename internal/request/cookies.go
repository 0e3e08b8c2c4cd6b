package request

import (
	"cmp"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"
)

// CookieStore persists the cookies of one host. SaveCookies replaces
// whatever was stored for that host. Path and Expires must round-trip.
type CookieStore interface {
	LoadCookies(host string) ([]*http.Cookie, error)
	SaveCookies(host string, cookies []*http.Cookie) error
}

type cookieKey struct{ name, path string }

// PersistentJar is an http.CookieJar that mirrors every change into a
// CookieStore, so a CLI login outlives the process. The jar keeps its own
// record of each cookie's path and expiry, which cookiejar does not expose.
type PersistentJar struct {
	inner  *cookiejar.Jar
	store  CookieStore
	logger *slog.Logger

	mu    sync.Mutex
	saved map[string]map[cookieKey]*http.Cookie // by host
}

var _ http.CookieJar = (*PersistentJar)(nil)

// NewPersistentJar creates a jar seeded with the stored cookies of each origin.
func NewPersistentJar(store CookieStore, logger *slog.Logger, origins ...string) (*PersistentJar, error) {
	inner, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("request: cookie jar: %w", err)
	}
	j := &PersistentJar{
		inner:  inner,
		store:  store,
		logger: logger,
		saved:  make(map[string]map[cookieKey]*http.Cookie),
	}
	for _, origin := range origins {
		u, err := url.Parse(origin)
		if err != nil {
			return nil, fmt.Errorf("request: parse origin %q: %w", origin, err)
		}
		if _, done := j.saved[u.Host]; done {
			continue
		}
		cookies, err := store.LoadCookies(u.Host)
		if err != nil {
			return nil, fmt.Errorf("request: load cookies for %s: %w", u.Host, err)
		}
		set := make(map[cookieKey]*http.Cookie, len(cookies))
		for _, ck := range cookies {
			if ck.Path == "" {
				ck.Path = "/"
			}
			set[cookieKey{ck.Name, ck.Path}] = ck
			scoped := &url.URL{Scheme: u.Scheme, Host: u.Host, Path: ck.Path}
			inner.SetCookies(scoped, []*http.Cookie{ck})
		}
		j.saved[u.Host] = set
	}
	return j, nil
}

// SetCookies implements http.CookieJar.
func (j *PersistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.inner.SetCookies(u, cookies)

	now := time.Now()
	j.mu.Lock()
	defer j.mu.Unlock()

	set := j.saved[u.Host]
	if set == nil {
		set = make(map[cookieKey]*http.Cookie)
		j.saved[u.Host] = set
	}
	for _, ck := range cookies {
		c, live := persistable(u, ck, now)
		key := cookieKey{c.Name, c.Path}
		if live {
			set[key] = c
		} else {
			delete(set, key)
		}
	}

	list := make([]*http.Cookie, 0, len(set))
	for key, c := range set {
		if !c.Expires.IsZero() && !c.Expires.After(now) {
			delete(set, key)
			continue
		}
		list = append(list, c)
	}
	slices.SortFunc(list, func(a, b *http.Cookie) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.Path, b.Path))
	})
	if err := j.store.SaveCookies(u.Host, list); err != nil {
		j.logger.Warn("request: persist cookies failed",
			slog.String("host", u.Host),
			slog.String("error", err.Error()))
	}
}

// Cookies implements http.CookieJar.
func (j *PersistentJar) Cookies(u *url.URL) []*http.Cookie {
	return j.inner.Cookies(u)
}

// persistable copies the attributes worth storing and resolves Max-Age into
// an absolute expiry. live is false when the cookie deletes itself.
func persistable(u *url.URL, ck *http.Cookie, now time.Time) (c *http.Cookie, live bool) {
	c = &http.Cookie{Name: ck.Name, Value: ck.Value, Path: ck.Path, Expires: ck.Expires}
	if !strings.HasPrefix(c.Path, "/") {
		c.Path = defaultPath(u.Path)
	}
	switch {
	case ck.MaxAge < 0:
		return c, false
	case ck.MaxAge > 0:
		c.Expires = now.Add(time.Duration(ck.MaxAge) * time.Second)
	}
	return c, c.Expires.IsZero() || c.Expires.After(now)
}

// defaultPath is the RFC 6265 default-path of a request path.
func defaultPath(p string) string {
	if !strings.HasPrefix(p, "/") {
		return "/"
	}
	i := strings.LastIndex(p, "/")
	if i == 0 {
		return "/"
	}
	return p[:i]
}

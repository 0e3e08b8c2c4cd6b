package request

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	cookies map[string][]*http.Cookie
}

func (m *memStore) LoadCookies(host string) ([]*http.Cookie, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*http.Cookie, 0, len(m.cookies[host]))
	for _, c := range m.cookies[host] {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) find(host, name string) *http.Cookie {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.cookies[host] {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (m *memStore) SaveCookies(host string, cookies []*http.Cookie) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cookies[host] = cookies
	return nil
}

func TestPersistentJar_SurvivesNewClient(t *testing.T) {
	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/user/login":
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
		default:
			if ck, err := r.Cookie("session"); err == nil {
				seen = ck.Value
			}
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := &memStore{cookies: map[string][]*http.Cookie{}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	jar1, err := NewPersistentJar(store, logger, srv.URL)
	require.NoError(t, err)
	c1, err := New(srv.URL+"/user/refresh", WithJar(jar1))
	require.NoError(t, err)
	_, err = c1.DoOnce(context.Background(), http.MethodPost, srv.URL+"/user/login", nil)
	require.NoError(t, err)

	u, _ := url.Parse(srv.URL)
	require.Len(t, store.cookies[u.Host], 1)

	// A fresh jar seeded from the store carries the session.
	jar2, err := NewPersistentJar(store, logger, srv.URL)
	require.NoError(t, err)
	c2, err := New(srv.URL+"/user/refresh", WithJar(jar2))
	require.NoError(t, err)
	_, err = c2.Do(context.Background(), http.MethodGet, srv.URL+"/db/prompts", nil)
	require.NoError(t, err)
	assert.Equal(t, "abc", seen)
}

func TestPersistentJar_PathScopedCookieSurvivesRestart(t *testing.T) {
	var refreshSeen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/user/login":
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
			http.SetCookie(w, &http.Cookie{Name: "refresh", Value: "rt", Path: "/user", MaxAge: 3600})
		case "/user/refresh":
			if ck, err := r.Cookie("refresh"); err == nil {
				refreshSeen = ck.Value
			}
		case "/user/logout":
			http.SetCookie(w, &http.Cookie{Name: "refresh", Path: "/user", MaxAge: -1})
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := &memStore{cookies: map[string][]*http.Cookie{}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	u, _ := url.Parse(srv.URL)
	ctx := context.Background()

	jar1, err := NewPersistentJar(store, logger, srv.URL)
	require.NoError(t, err)
	c1, err := New(srv.URL+"/user/refresh", WithJar(jar1))
	require.NoError(t, err)
	_, err = c1.DoOnce(ctx, http.MethodPost, srv.URL+"/user/login", nil)
	require.NoError(t, err)

	stored := store.find(u.Host, "refresh")
	require.NotNil(t, stored, "path-scoped cookie not persisted")
	assert.Equal(t, "/user", stored.Path)
	assert.WithinDuration(t, time.Now().Add(time.Hour), stored.Expires, time.Minute)
	require.NotNil(t, store.find(u.Host, "session"))

	jar2, err := NewPersistentJar(store, logger, srv.URL)
	require.NoError(t, err)
	c2, err := New(srv.URL+"/user/refresh", WithJar(jar2))
	require.NoError(t, err)
	require.NoError(t, c2.Refresh(ctx))
	assert.Equal(t, "rt", refreshSeen)

	_, err = c2.DoOnce(ctx, http.MethodPost, srv.URL+"/user/logout", nil)
	require.NoError(t, err)
	assert.Nil(t, store.find(u.Host, "refresh"), "deleted cookie still stored")
	assert.NotNil(t, store.find(u.Host, "session"), "unrelated cookie dropped")
}

func TestDefaultPath(t *testing.T) {
	cases := map[string]string{
		"":            "/",
		"/":           "/",
		"/login":      "/",
		"/user/login": "/user",
		"/a/b/c":      "/a/b",
	}
	for in, want := range cases {
		assert.Equal(t, want, defaultPath(in), in)
	}
}

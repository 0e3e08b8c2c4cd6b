package session

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Credentials is the login form.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the sign-up form.
type Registration struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	EarlyAccessCode string `json:"earlyAccessCode"`
}

// Accounts calls the backend's user endpoints. Session cookies set by the
// backend land in the caller's cookie jar.
type Accounts struct {
	api  Caller
	base string
}

// NewAccounts creates an Accounts client rooted at baseURL.
func NewAccounts(api Caller, baseURL string) *Accounts {
	return &Accounts{api: api, base: strings.TrimRight(baseURL, "/")}
}

// Login posts the credentials. Rejected credentials yield apperr.ErrUnauthenticated.
func (a *Accounts) Login(ctx context.Context, c Credentials) error {
	if _, err := a.api.DoOnce(ctx, http.MethodPost, a.base+"/user/login", c); err != nil {
		return fmt.Errorf("session: login: %w", err)
	}
	return nil
}

// Register creates an account. The user still has to log in afterwards.
func (a *Accounts) Register(ctx context.Context, r Registration) error {
	if _, err := a.api.DoOnce(ctx, http.MethodPost, a.base+"/user/register", r); err != nil {
		return fmt.Errorf("session: register: %w", err)
	}
	return nil
}

// Logout ends the session through the refreshing client.
func (a *Accounts) Logout(ctx context.Context) error {
	if _, err := a.api.Do(ctx, http.MethodPost, a.base+"/user/logout", nil); err != nil {
		return fmt.Errorf("session: logout: %w", err)
	}
	return nil
}

package backend

import (
	"context"
	"net/http"
	"net/url"

	"mentalhealth-ai.bd/companion/internal/model"
)

// SignUpResult carries a session only when the service signed the user in
// directly; otherwise the address must be confirmed first.
type SignUpResult struct {
	User    *model.AuthUser    `json:"user"`
	Session *model.AuthSession `json:"session"`
}

func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*SignUpResult, error) {
	var out SignUpResult
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/signup",
		body:   map[string]any{"email": email, "password": password, "data": metadata},
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Session != nil {
		c.SetSession(out.Session)
	}
	return &out, nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*model.AuthSession, error) {
	var out model.AuthSession
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"password"}},
		body:   map[string]string{"email": email, "password": password},
	}, &out)
	if err != nil {
		return nil, err
	}
	c.SetSession(&out)
	return &out, nil
}

// SignOut revokes the held session. The local session is dropped even when
// the service call fails.
func (c *Client) SignOut(ctx context.Context) error {
	var err error
	if c.accessToken() != "" {
		err = c.do(ctx, request{method: http.MethodPost, path: "/auth/v1/logout", auth: true}, nil)
	}
	c.clearSession(EventSignedOut)
	return err
}

// GetUser fetches the identity behind the held token.
func (c *Client) GetUser(ctx context.Context) (*model.AuthUser, error) {
	var out model.AuthUser
	if err := c.do(ctx, request{method: http.MethodGet, path: "/auth/v1/user", auth: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdatePassword(ctx context.Context, password string) (*model.AuthUser, error) {
	var out model.AuthUser
	err := c.do(ctx, request{
		method: http.MethodPut,
		path:   "/auth/v1/user",
		body:   map[string]string{"password": password},
		auth:   true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/recover",
		body:   map[string]string{"email": email, "redirect_to": redirectTo},
	}, nil)
}

// OAuthURL is where the user is sent to sign in with provider.
func (c *Client) OAuthURL(provider, redirectTo string) string {
	q := url.Values{"provider": {provider}}
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	return c.baseURL + "/auth/v1/authorize?" + q.Encode()
}

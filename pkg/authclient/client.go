package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type AuthResult struct {
	User   User   `json:"user"`
	Tokens Tokens `json:"tokens"`
}

type Option func(*options)

type options struct {
	store            TokenStore
	base             http.RoundTripper
	timeout          time.Duration
	onSessionExpired func()
}

func WithTokenStore(store TokenStore) Option {
	return func(o *options) { o.store = store }
}

// WithBaseTransport sets the RoundTripper requests go through after the
// bearer token is attached.
func WithBaseTransport(base http.RoundTripper) Option {
	return func(o *options) { o.base = base }
}

func WithTimeout(timeout time.Duration) Option {
	return func(o *options) { o.timeout = timeout }
}

func WithSessionExpiredHook(hook func()) Option {
	return func(o *options) { o.onSessionExpired = hook }
}

type Client struct {
	baseURL string
	store   TokenStore
	http    *http.Client
}

func New(baseURL string, opts ...Option) *Client {
	o := options{timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	if o.store == nil {
		o.store = NewMemoryTokenStore()
	}

	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		baseURL: baseURL,
		store:   o.store,
		http: &http.Client{
			Timeout: o.timeout,
			Transport: &Transport{
				Base:             o.base,
				Store:            o.store,
				RefreshURL:       baseURL + "/auth/refresh",
				OnSessionExpired: o.onSessionExpired,
			},
		},
	}
}

func (c *Client) Tokens() (Tokens, error) {
	return c.store.Load()
}

func (c *Client) Register(ctx context.Context, name, email, password string) (AuthResult, error) {
	var res AuthResult
	body := map[string]string{"name": name, "email": email, "password": password}
	if err := c.do(WithoutRefresh(ctx), http.MethodPost, "/auth/register", body, &res); err != nil {
		return AuthResult{}, err
	}

	return res, c.store.Save(res.Tokens)
}

func (c *Client) Login(ctx context.Context, email, password string) (AuthResult, error) {
	var res AuthResult
	body := map[string]string{"email": email, "password": password}
	if err := c.do(WithoutRefresh(ctx), http.MethodPost, "/auth/login", body, &res); err != nil {
		return AuthResult{}, err
	}

	return res, c.store.Save(res.Tokens)
}

// Refresh rotates the stored pair explicitly. Most callers rely on the
// transport doing this on 401.
func (c *Client) Refresh(ctx context.Context) (Tokens, error) {
	current, err := c.store.Load()
	if err != nil {
		return Tokens{}, err
	}
	if current.RefreshToken == "" {
		return Tokens{}, ErrNoRefreshToken
	}

	var pair Tokens
	body := map[string]string{"refreshToken": current.RefreshToken}
	if err := c.do(WithoutRefresh(ctx), http.MethodPost, "/auth/refresh", body, &pair); err != nil {
		return Tokens{}, err
	}

	return pair, c.store.Save(pair)
}

// Logout clears the local tokens even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
	if clearErr := c.store.Clear(); clearErr != nil && err == nil {
		err = clearErr
	}
	return err
}

func (c *Client) Me(ctx context.Context) (User, error) {
	var res struct {
		User User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &res); err != nil {
		return User{}, err
	}
	return res.User, nil
}

func (c *Client) DeleteAccount(ctx context.Context) error {
	if err := c.do(ctx, http.MethodDelete, "/auth/me", nil, nil); err != nil {
		return err
	}
	return c.store.Clear()
}

func (c *Client) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	body := map[string]string{"currentPassword": currentPassword, "newPassword": newPassword}
	return c.do(ctx, http.MethodPut, "/auth/change-password", body, nil)
}

func (c *Client) ForgotPassword(ctx context.Context, email string) (string, error) {
	var res struct {
		Message string `json:"message"`
	}
	body := map[string]string{"email": email}
	if err := c.do(WithoutRefresh(ctx), http.MethodPost, "/auth/forgot-password", body, &res); err != nil {
		return "", err
	}
	return res.Message, nil
}

func (c *Client) ResetPassword(ctx context.Context, token, password string) (string, error) {
	var res struct {
		Message string `json:"message"`
	}
	body := map[string]string{"token": token, "password": password}
	if err := c.do(WithoutRefresh(ctx), http.MethodPost, "/auth/reset-password", body, &res); err != nil {
		return "", err
	}
	return res.Message, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	}
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

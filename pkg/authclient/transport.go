package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
)

type skipRefreshKey struct{}

// WithoutRefresh marks requests made with ctx so a 401 is returned as is.
func WithoutRefresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipRefreshKey{}, true)
}

func skipRefresh(ctx context.Context) bool {
	skip, _ := ctx.Value(skipRefreshKey{}).(bool)
	return skip
}

type refreshResult struct {
	accessToken string
	err         error
}

// Transport attaches the bearer token and recovers from expired access tokens
// with one shared refresh call.
type Transport struct {
	Base       http.RoundTripper
	Store      TokenStore
	RefreshURL string
	// OnSessionExpired runs after a failed refresh has cleared the store.
	OnSessionExpired func()

	mu         sync.Mutex
	refreshing bool
	waiters    []chan refreshResult
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}

	tokens, err := t.Store.Load()
	if err != nil {
		return nil, err
	}

	resp, err := t.send(req, body, tokens.AccessToken)
	if err != nil || resp.StatusCode != http.StatusUnauthorized || skipRefresh(req.Context()) {
		return resp, err
	}

	// Keep the 401 readable so it can be returned if recovery fails.
	unauthorized, err := bufferResponse(resp)
	if err != nil {
		return nil, err
	}

	accessToken, err := t.awaitRefresh(req.Context(), tokens.AccessToken)
	if err != nil {
		slog.Debug("session refresh failed", "url", req.URL.Path, "error", err)
		return unauthorized, nil
	}

	return t.send(req, body, accessToken)
}

// awaitRefresh returns an access token newer than sent, starting a refresh
// only when none is already running.
func (t *Transport) awaitRefresh(ctx context.Context, sent string) (string, error) {
	t.mu.Lock()

	current, err := t.Store.Load()
	if err != nil {
		t.mu.Unlock()
		return "", err
	}
	if current.AccessToken != "" && current.AccessToken != sent {
		t.mu.Unlock()
		return current.AccessToken, nil
	}

	if t.refreshing {
		wait := make(chan refreshResult, 1)
		t.waiters = append(t.waiters, wait)
		t.mu.Unlock()

		select {
		case res := <-wait:
			return res.accessToken, res.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	t.refreshing = true
	t.mu.Unlock()

	pair, err := t.refresh(context.WithoutCancel(ctx), current.RefreshToken)

	t.mu.Lock()
	if err == nil {
		err = t.Store.Save(pair)
	}
	if err != nil {
		if clearErr := t.Store.Clear(); clearErr != nil {
			slog.Warn("clear tokens after failed refresh", "error", clearErr)
		}
	}
	waiters := t.waiters
	t.waiters = nil
	t.refreshing = false
	t.mu.Unlock()

	res := refreshResult{accessToken: pair.AccessToken, err: err}
	for _, wait := range waiters {
		wait <- res
	}

	if err != nil {
		if t.OnSessionExpired != nil {
			t.OnSessionExpired()
		}
		return "", err
	}

	return pair.AccessToken, nil
}

func (t *Transport) refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	if refreshToken == "" {
		return Tokens{}, ErrNoRefreshToken
	}

	payload, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return Tokens{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.RefreshURL, bytes.NewReader(payload))
	if err != nil {
		return Tokens{}, fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.base().RoundTrip(req)
	if err != nil {
		return Tokens{}, fmt.Errorf("refresh: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Tokens{}, decodeAPIError(resp)
	}

	var pair Tokens
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return Tokens{}, fmt.Errorf("decode refresh response: %w", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return Tokens{}, fmt.Errorf("refresh response missing tokens")
	}

	return pair, nil
}

func (t *Transport) send(req *http.Request, body []byte, accessToken string) (*http.Response, error) {
	out := req.Clone(req.Context())
	if body != nil {
		out.Body = io.NopCloser(bytes.NewReader(body))
		out.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		out.ContentLength = int64(len(body))
	}
	if accessToken != "" {
		out.Header.Set("Authorization", "Bearer "+accessToken)
	}

	return t.base().RoundTrip(out)
}

func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("buffer request body: %w", err)
	}
	return body, nil
}

func bufferResponse(resp *http.Response) (*http.Response, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

// Package authclient is the client side of the session contract served by
// the auth API.
//
// # Overview
//
// Transport is an http.RoundTripper that attaches the stored access token to
// every request. When the server answers 401 it performs a single refresh
// call, shared by every request that failed while it was running, and replays
// each failed request once with the new access token. When the refresh itself
// fails the stored tokens are cleared and the OnSessionExpired hook runs.
//
// Client wraps Transport with typed calls for every endpoint. Calls that must
// never trigger a refresh (login, register, password reset, refresh) are sent
// with WithoutRefresh.
//
// # Concurrency
//
// Transport and Client are safe for concurrent use. All refresh bookkeeping
// lives on the Transport value; two transports never share state.
package authclient

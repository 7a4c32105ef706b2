// Package github is a small typed client for the parts of the GitHub REST
// API that publishing needs: repository lookup, branch refs and the
// contents endpoints.
//
// Requests carry a bearer token, a User-Agent and the pinned API version
// header. Non-2xx responses become *APIError so callers can branch on the
// status (IsNotFound, IsRateLimited, IsConflict). The client never retries;
// timeouts come from the supplied http.Client.
//
// The client refuses non-HTTPS base URLs.
package github

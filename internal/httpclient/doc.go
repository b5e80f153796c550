// Package httpclient executes outbound platform requests with rate-limit aware
// retries.
//
// Client inspects every response for quota headers, retries throttled and
// server-side failures with reset-header, Retry-After, or exponential backoff,
// and reports GET 404 responses as absent rather than failed. Client also
// implements http.RoundTripper so SDK clients share the same policy. Paginate
// walks cursor-driven collections lazily.
package httpclient

// Package ratelimit provides net/http middlewares for per-client rate limiting
// and for capping in-flight requests.
//
// Layers:
//
//   - domain: contracts and types, no net/http
//   - application: use cases (allow/deny decision, acquire with timeout)
//   - infra: concrete stores (sliding window, Redis window, token bucket,
//     semaphore, stats)
//   - ratelimit (this package): middlewares, key extraction and the mapping
//     to status codes, headers and JSON bodies
//
// Request flow:
//
//  1. extract the client key (header, X-Forwarded-For or remote address)
//  2. ask the application layer for a decision
//  3. blocked: 429 {"message":"Too many requests"} (or 503 for the concurrency cap)
//  4. allowed: call the next handler
package ratelimit

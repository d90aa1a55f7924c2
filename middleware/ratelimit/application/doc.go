// Package application holds the use cases for rate limiting and concurrency
// limiting.
//
// It depends only on package domain and knows nothing about net/http:
// Service.Decide(key) returns a Decision (allow/deny plus retry-after).
package application

// Package domain defines the contracts and types for rate limiting and
// concurrency limiting.
//
// It does not depend on net/http or on any concrete store, so the rules can be
// unit tested in isolation and the infrastructure can be swapped freely.
package domain

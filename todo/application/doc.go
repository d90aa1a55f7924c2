// Package application holds the Todo use cases. Each use case runs in exactly
// one storage session.
package application

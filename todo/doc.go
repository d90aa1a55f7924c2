// Package todo exposes the todo use cases over HTTP.
package todo

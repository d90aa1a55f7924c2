// Package server assembles the todo-api HTTP stack: the mux, the middleware
// chain around it and the *http.Server that runs it.
package server

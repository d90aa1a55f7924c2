package todo

import (
	"net/http"

	"todo-api/middleware/envelope"
)

// Routes registers the todo endpoints and /healthz on mux. Collection routes
// answer with and without the trailing slash. Every path also gets a
// method-less fallback so other methods receive a 405 envelope.
func (h *Handler) Routes(mux *http.ServeMux) {
	handle := func(pattern string, fn envelope.HandlerFunc) {
		mux.Handle(pattern, envelope.Handle(h.logger(), fn))
	}

	handle("POST /todos", h.create)
	handle("POST /todos/{$}", h.create)
	handle("POST /todos/background", h.createBackground)
	handle("POST /todos/background/{$}", h.createBackground)
	handle("GET /todos", h.list)
	handle("GET /todos/{$}", h.list)
	handle("GET /todos/{id}", h.get)
	handle("PUT /todos/{id}", h.update)
	handle("DELETE /todos/{id}", h.delete)
	handle("GET /healthz", h.health)

	collection := envelope.MethodNotAllowed(http.MethodGet, http.MethodHead, http.MethodPost)
	handle("/todos", collection)
	handle("/todos/{$}", collection)
	// "/todos/background" has no fallback: it would overlap "GET /todos/{id}"
	// with neither pattern more specific. Other methods reach the {id} routes.
	handle("/todos/background/{$}", envelope.MethodNotAllowed(http.MethodPost))
	handle("/todos/{id}", envelope.MethodNotAllowed(http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete))
	handle("/healthz", envelope.MethodNotAllowed(http.MethodGet, http.MethodHead))
}

// Package envelope turns handler failures into one JSON shape:
//
//	{"message": "...", "custom": "error handler"}
//
// with the failure's HTTP status preserved.
package envelope

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
)

// Marker is the fixed value of the "custom" field.
const Marker = "error handler"

type Body struct {
	Message string `json:"message"`
	Custom  string `json:"custom"`
}

// Error is a failure that already knows its HTTP status.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, message string) *Error {
	return &Error{Status: status, Message: message}
}

// Wrap keeps err for logs and errors.Is while only message reaches the client.
func Wrap(status int, message string, err error) *Error {
	return &Error{Status: status, Message: message, Err: err}
}

// Write sends the envelope with the given status.
func Write(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Body{Message: message, Custom: Marker})
}

// WriteError maps err to an envelope. Errors without a status become 500 and
// are logged; their text never reaches the client.
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Status >= http.StatusInternalServerError {
			logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "status", e.Status, "err", err)
		}
		Write(w, e.Status, e.Message)
		return
	}
	logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	Write(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

// HandlerFunc reports failures by returning them. Wrap one with Handle.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

type handler struct {
	fn     HandlerFunc
	logger *slog.Logger
}

// Handle adapts fn to an http.Handler that writes returned errors through
// WriteError, logging to logger.
func Handle(logger *slog.Logger, fn HandlerFunc) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return handler{fn: fn, logger: logger}
}

func (h handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.fn(w, r); err != nil {
		WriteError(w, r, h.logger, err)
	}
}

// NotFound answers every request with a 404 envelope.
func NotFound(w http.ResponseWriter, r *http.Request) error {
	return New(http.StatusNotFound, http.StatusText(http.StatusNotFound))
}

// MethodNotAllowed answers with a 405 envelope and an Allow header listing
// the methods the path does serve.
func MethodNotAllowed(allow ...string) HandlerFunc {
	value := strings.Join(allow, ", ")
	return func(w http.ResponseWriter, r *http.Request) error {
		w.Header().Set("Allow", value)
		return New(http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	}
}

// Recover converts panics into a 500 envelope. http.ErrAbortHandler is
// re-raised so net/http can abort the connection.
func Recover(logger *slog.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic serving request",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
					"stack", string(debug.Stack()),
				)
				Write(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

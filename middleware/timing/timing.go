// Package timing measures how long each request takes, reports it in the
// X-Process-Time response header (seconds) and logs it.
package timing

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

const Header = "X-Process-Time"

type Options struct {
	Logger *slog.Logger
	// Now replaces time.Now in tests.
	Now func() time.Time
}

// Middleware must wrap every other middleware that may answer on its own
// (rate limit, recovery) so that those responses carry the header too.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &recorder{ResponseWriter: w, start: opts.Now(), now: opts.Now}
			next.ServeHTTP(rec, r)
			if !rec.wroteHeader {
				rec.WriteHeader(http.StatusOK)
			}

			elapsed := opts.Now().Sub(rec.start)
			opts.Logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"process_time", FormatSeconds(elapsed),
			)
		})
	}
}

// FormatSeconds renders d as decimal seconds, e.g. "0.001532".
func FormatSeconds(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

// recorder stamps the header right before the status line goes out, the last
// moment headers can still change.
type recorder struct {
	http.ResponseWriter
	start       time.Time
	now         func() time.Time
	status      int
	wroteHeader bool
}

func (rec *recorder) WriteHeader(code int) {
	if !rec.wroteHeader {
		rec.wroteHeader = true
		rec.status = code
		rec.Header().Set(Header, FormatSeconds(rec.now().Sub(rec.start)))
	}
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *recorder) Write(b []byte) (int, error) {
	if !rec.wroteHeader {
		rec.WriteHeader(http.StatusOK)
	}
	return rec.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rec *recorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

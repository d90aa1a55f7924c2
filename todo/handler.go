package todo

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"todo-api/background"
	"todo-api/middleware/envelope"
	"todo-api/todo/application"
	"todo-api/todo/domain"
)

const (
	NotFoundMessage   = "Todo not found"
	DeletedMessage    = "Todo deleted"
	BackgroundMessage = "Todo created, processing in background"

	DefaultProcessDelay = 2 * time.Second

	maxBodyBytes = 1 << 20
)

type Handler struct {
	Service application.Service
	Runner  *background.Runner
	Logger  *slog.Logger
	// ProcessDelay is how long a background task waits before it logs the
	// processed todo. Zero means DefaultProcessDelay; negative means none.
	ProcessDelay time.Duration
}

type messageResponse struct {
	Message string `json:"message"`
}

type detailResponse struct {
	Detail string `json:"detail"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) error {
	in, err := decodeInput(w, r)
	if err != nil {
		return err
	}
	todo, err := h.Service.Create(r.Context(), in)
	if err != nil {
		return mapError(err)
	}
	writeJSON(w, http.StatusOK, todo)
	return nil
}

// createBackground answers before the follow-up work starts; the task only
// logs, so nothing about it is observable by the client.
func (h *Handler) createBackground(w http.ResponseWriter, r *http.Request) error {
	in, err := decodeInput(w, r)
	if err != nil {
		return err
	}
	todo, err := h.Service.Create(r.Context(), in)
	if err != nil {
		return mapError(err)
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: BackgroundMessage})

	delay := h.ProcessDelay
	if delay == 0 {
		delay = DefaultProcessDelay
	}
	log := h.logger()
	h.Runner.Submit("process todo", func(ctx context.Context) error {
		if delay > 0 {
			if err := background.Sleep(ctx, delay); err != nil {
				return err
			}
		}
		log.Info("processed todo",
			"id", todo.ID,
			"title", todo.Title,
			"description", todo.Description,
			"completed", todo.Completed,
		)
		return nil
	})
	return nil
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	todo, err := h.Service.Get(r.Context(), id)
	if err != nil {
		return mapError(err)
	}
	writeJSON(w, http.StatusOK, todo)
	return nil
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	in, err := decodeInput(w, r)
	if err != nil {
		return err
	}
	todo, err := h.Service.Update(r.Context(), id, in)
	if err != nil {
		return mapError(err)
	}
	writeJSON(w, http.StatusOK, todo)
	return nil
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	if err := h.Service.Delete(r.Context(), id); err != nil {
		return mapError(err)
	}
	writeJSON(w, http.StatusOK, detailResponse{Detail: DeletedMessage})
	return nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) error {
	todos, err := h.Service.List(r.Context())
	if err != nil {
		return mapError(err)
	}
	writeJSON(w, http.StatusOK, todos)
	return nil
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) error {
	if err := h.Service.Ping(r.Context()); err != nil {
		return envelope.Wrap(http.StatusServiceUnavailable, "Database unavailable", err)
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
	return nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return envelope.Wrap(http.StatusNotFound, NotFoundMessage, err)
	case errors.Is(err, domain.ErrInvalidInput):
		return envelope.Wrap(http.StatusUnprocessableEntity, err.Error(), err)
	default:
		return err
	}
}

var errTrailingData = errors.New("unexpected data after JSON body")

func decodeInput(w http.ResponseWriter, r *http.Request) (domain.TodoInput, error) {
	var in domain.TodoInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&in); err != nil {
		return domain.TodoInput{}, envelope.Wrap(http.StatusUnprocessableEntity, "invalid request body", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return domain.TodoInput{}, envelope.Wrap(http.StatusUnprocessableEntity, "invalid request body", errTrailingData)
	}
	return in, nil
}

func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, envelope.Wrap(http.StatusUnprocessableEntity, "id must be an integer", err)
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	goTasks "github.com/MrEthical07/goTasks"
	"github.com/MrEthical07/goTasks/internal/apierr"
	"github.com/MrEthical07/goTasks/tasks"
)

// Handlers hold the dependencies of the REST handlers.
type Handlers struct {
	engine *goTasks.Engine
	tasks  *tasks.Store
	cfg    goTasks.Config
}

// NewHandlers wires the handlers to the auth engine and the task store.
func NewHandlers(engine *goTasks.Engine, store *tasks.Store) *Handlers {
	h := &Handlers{engine: engine, tasks: store, cfg: goTasks.DefaultConfig()}
	if engine != nil {
		h.cfg = engine.Config()
	}
	return h
}

// fail writes the error envelope and logs server-side failures with the request logger.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := apierr.ToHTTP(err)
	if status >= http.StatusInternalServerError {
		LoggerFrom(r.Context()).LogAttrs(r.Context(), slog.LevelError, "request failed",
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Any("err", err),
		)
	}
	apierr.WriteError(w, r, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeStrict decodes a single JSON object into v, rejecting unknown fields
// and trailing data.
func decodeStrict(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", apierr.ErrMalformedBody, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data", apierr.ErrMalformedBody)
	}
	return nil
}

type messageResponse struct {
	Message string `json:"message"`
}

var updatedResponse = messageResponse{Message: "updated successfully"}

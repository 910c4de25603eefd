package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	goTasks "github.com/MrEthical07/goTasks"
	"github.com/MrEthical07/goTasks/middleware"
	"github.com/MrEthical07/goTasks/tasks"
)

type listRequest struct {
	Title *string `json:"title"`
}

type taskRequest struct {
	Title     *string `json:"title"`
	Completed *bool   `json:"completed"`
}

// checkTitle validates an optional title; required rejects a missing one.
func checkTitle(title *string, required bool) error {
	verr := &goTasks.ValidationError{}
	switch {
	case title == nil:
		if required {
			verr.Add("title", "is required")
		}
	default:
		if _, ok := tasks.NormalizeTitle(*title); !ok {
			verr.Add("title", "must be a non-empty string")
		}
	}
	return verr.OrNil()
}

func owner(r *http.Request) string {
	id, _ := middleware.UserIDFromContext(r.Context())
	return id
}

// GetLists handles GET /lists.
func (h *Handlers) GetLists(w http.ResponseWriter, r *http.Request) {
	lists, err := h.tasks.Lists(r.Context(), owner(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lists)
}

// CreateList handles POST /lists.
func (h *Handlers) CreateList(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if err := decodeStrict(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := checkTitle(req.Title, true); err != nil {
		h.fail(w, r, err)
		return
	}

	l, err := h.tasks.CreateList(r.Context(), owner(r), *req.Title)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// UpdateList handles PATCH /lists/{id}. A body without a title only checks
// that the list exists.
func (h *Handlers) UpdateList(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if err := decodeStrict(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := checkTitle(req.Title, false); err != nil {
		h.fail(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	var err error
	if req.Title == nil {
		_, err = h.tasks.List(r.Context(), owner(r), id)
	} else {
		_, err = h.tasks.UpdateList(r.Context(), owner(r), id, *req.Title)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updatedResponse)
}

// DeleteList handles DELETE /lists/{id} and returns the removed list.
func (h *Handlers) DeleteList(w http.ResponseWriter, r *http.Request) {
	l, err := h.tasks.DeleteList(r.Context(), owner(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// GetTasks handles GET /lists/{listId}/tasks.
func (h *Handlers) GetTasks(w http.ResponseWriter, r *http.Request) {
	ts, err := h.tasks.Tasks(r.Context(), owner(r), chi.URLParam(r, "listId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

// CreateTask handles POST /lists/{listId}/tasks.
func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if err := decodeStrict(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := checkTitle(req.Title, true); err != nil {
		h.fail(w, r, err)
		return
	}

	t, err := h.tasks.CreateTask(r.Context(), owner(r), chi.URLParam(r, "listId"), *req.Title)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// UpdateTask handles PATCH /lists/{listId}/tasks/{taskId}.
func (h *Handlers) UpdateTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decodeStrict(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := checkTitle(req.Title, false); err != nil {
		h.fail(w, r, err)
		return
	}

	patch := tasks.TaskPatch{Title: req.Title, Completed: req.Completed}
	_, err := h.tasks.UpdateTask(r.Context(), owner(r), chi.URLParam(r, "listId"), chi.URLParam(r, "taskId"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updatedResponse)
}

// DeleteTask handles DELETE /lists/{listId}/tasks/{taskId} and returns the removed task.
func (h *Handlers) DeleteTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.tasks.DeleteTask(r.Context(), owner(r), chi.URLParam(r, "listId"), chi.URLParam(r, "taskId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

package tasks

import (
	"strings"
	"time"
)

// MaxTitleLength bounds list and task titles, in bytes.
const MaxTitleLength = 512

// List is a named collection of tasks owned by one user.
type List struct {
	ID        string    `json:"_id"`
	Title     string    `json:"title"`
	OwnerID   string    `json:"_userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Task is a single item of a List.
type Task struct {
	ID        string    `json:"_id"`
	Title     string    `json:"title"`
	ListID    string    `json:"_listId"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"createdAt"`
}

// TaskPatch holds the optional fields of a task update. Nil fields are left unchanged.
type TaskPatch struct {
	Title     *string
	Completed *bool
}

// NormalizeTitle trims the title and reports whether it is acceptable:
// non-empty after trimming and at most MaxTitleLength bytes.
func NormalizeTitle(title string) (string, bool) {
	t := strings.TrimSpace(title)
	return t, t != "" && len(t) <= MaxTitleLength
}

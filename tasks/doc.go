// Package tasks stores task lists and their tasks in Redis, scoped to the
// owning user. Deleting a list deletes its tasks; deleting an owner deletes
// all of their lists.
package tasks

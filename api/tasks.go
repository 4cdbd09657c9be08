package api

import (
	"context"
	"net/http"
	"net/url"

	"taskdesk/domain"
)

func (c *Client) CreateTask(ctx context.Context, fields domain.TaskFields) (domain.Task, error) {
	if err := c.check(fields); err != nil {
		return domain.Task{}, err
	}
	data, err := c.do(ctx, request{method: http.MethodPost, route: "/tasks", path: "/tasks", body: fields, auth: true})
	if err != nil {
		return domain.Task{}, err
	}
	return decodeTask(data)
}

// Tasks lists the tasks visible to the authenticated user in server order.
func (c *Client) Tasks(ctx context.Context) ([]domain.Task, error) {
	data, err := c.do(ctx, request{method: http.MethodGet, route: "/tasks", path: "/tasks", auth: true})
	if err != nil {
		return nil, err
	}
	return decodeList[domain.Task](data, "tasks")
}

func (c *Client) Task(ctx context.Context, id string) (domain.Task, error) {
	if err := requireID("task", id); err != nil {
		return domain.Task{}, err
	}
	data, err := c.do(ctx, request{method: http.MethodGet, route: "/tasks/:id", path: taskPath(id), auth: true})
	if err != nil {
		return domain.Task{}, err
	}
	return decodeTask(data)
}

func (c *Client) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	if err := requireID("task", id); err != nil {
		return domain.Task{}, err
	}
	if patch.IsEmpty() {
		return domain.Task{}, &ValidationError{Problems: []string{"update has no fields"}}
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return domain.Task{}, &ValidationError{Problems: []string{"status must be one of: pending in-progress completed"}}
	}
	data, err := c.do(ctx, request{method: http.MethodPut, route: "/tasks/:id", path: taskPath(id), body: patch, auth: true})
	if err != nil {
		return domain.Task{}, err
	}
	return decodeTask(data)
}

func (c *Client) DeleteTask(ctx context.Context, id string) (Confirmation, error) {
	if err := requireID("task", id); err != nil {
		return Confirmation{}, err
	}
	data, err := c.do(ctx, request{method: http.MethodDelete, route: "/tasks/:id", path: taskPath(id), auth: true})
	if err != nil {
		return Confirmation{}, err
	}
	return decodeConfirmation(data)
}

// UpdateTaskStatus changes only the status of a task.
func (c *Client) UpdateTaskStatus(ctx context.Context, id string, status domain.Status) (domain.Task, error) {
	if err := requireID("task", id); err != nil {
		return domain.Task{}, err
	}
	if !status.Valid() {
		return domain.Task{}, &ValidationError{Problems: []string{"status must be one of: pending in-progress completed"}}
	}
	body := struct {
		Status domain.Status `json:"status"`
	}{status}
	data, err := c.do(ctx, request{
		method: http.MethodPatch,
		route:  "/tasks/:id/status",
		path:   taskPath(id) + "/status",
		body:   body,
		auth:   true,
	})
	if err != nil {
		return domain.Task{}, err
	}
	return decodeTask(data)
}

// decodeTask decodes a task body, bare or wrapped, and rejects bodies that
// carry no task id such as a plain {"message": ...} confirmation.
func decodeTask(data []byte) (domain.Task, error) {
	t, err := decodeOne[domain.Task](data, "task")
	if err != nil {
		return domain.Task{}, err
	}
	if t.ID == "" {
		return domain.Task{}, ErrNoTask
	}
	return t, nil
}

func taskPath(id string) string {
	return "/tasks/" + url.PathEscape(id)
}

package domain

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// Status is the lifecycle state of a task. The server is the authority on
// transitions; the client accepts whatever it is sent.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

var ErrInvalidStatus = errors.New("invalid task status")

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// ParseStatus converts user input into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}

const dateLayout = "2006-01-02"

// Date is a calendar date. The backend sends either a bare date or a full
// timestamp; only the leading YYYY-MM-DD part is kept.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts "2006-01-02" or any timestamp starting with a date.
func ParseDate(s string) (Date, error) {
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := sonic.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// EmployeeRef points at the employee a task is assigned to. The name is only
// present when the backend populated the reference.
type EmployeeRef struct {
	ID   string `json:"_id"`
	Name string `json:"name,omitempty"`
}

type employeeRefObject EmployeeRef

// MarshalJSON emits a bare id unless the name is known.
func (e EmployeeRef) MarshalJSON() ([]byte, error) {
	if e.Name == "" {
		return sonic.Marshal(e.ID)
	}
	return sonic.Marshal(employeeRefObject(e))
}

func (e *EmployeeRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*e = EmployeeRef{}
		return nil
	}
	if b[0] == '"' {
		var id string
		if err := sonic.Unmarshal(b, &id); err != nil {
			return err
		}
		*e = EmployeeRef{ID: id}
		return nil
	}
	var obj employeeRefObject
	if err := sonic.Unmarshal(b, &obj); err != nil {
		return err
	}
	*e = EmployeeRef(obj)
	return nil
}

// Task is a single task record as served by the backend.
type Task struct {
	ID               string       `json:"_id"`
	Title            string       `json:"title"`
	Description      string       `json:"description,omitempty"`
	Status           Status       `json:"status"`
	AssignedEmployee *EmployeeRef `json:"assignedEmployee,omitempty"`
	DueDate          Date         `json:"dueDate"`
	AssignedBy       string       `json:"assignedBy,omitempty"`
}

// Clone returns a copy that shares no pointers with t.
func (t Task) Clone() Task {
	if t.AssignedEmployee != nil {
		ref := *t.AssignedEmployee
		t.AssignedEmployee = &ref
	}
	return t
}

// TaskPatch carries a partial task. Nil fields are left untouched.
type TaskPatch struct {
	Title            *string      `json:"title,omitempty"`
	Description      *string      `json:"description,omitempty"`
	Status           *Status      `json:"status,omitempty"`
	AssignedEmployee *EmployeeRef `json:"assignedEmployee,omitempty"`
	DueDate          *Date        `json:"dueDate,omitempty"`
	AssignedBy       *string      `json:"assignedBy,omitempty"`
}

// StatusPatch builds a patch that only changes the status.
func StatusPatch(s Status) TaskPatch {
	return TaskPatch{Status: &s}
}

// PatchFromTask builds a patch overwriting every field of a task except its id.
func PatchFromTask(t Task) TaskPatch {
	t = t.Clone()
	return TaskPatch{
		Title:            &t.Title,
		Description:      &t.Description,
		Status:           &t.Status,
		AssignedEmployee: t.AssignedEmployee,
		DueDate:          &t.DueDate,
		AssignedBy:       &t.AssignedBy,
	}
}

func (p TaskPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil &&
		p.AssignedEmployee == nil && p.DueDate == nil && p.AssignedBy == nil
}

// ApplyTo overwrites the fields set in p and reports whether t changed.
func (p TaskPatch) ApplyTo(t *Task) bool {
	changed := false
	if p.Title != nil && t.Title != *p.Title {
		t.Title = *p.Title
		changed = true
	}
	if p.Description != nil && t.Description != *p.Description {
		t.Description = *p.Description
		changed = true
	}
	if p.Status != nil && t.Status != *p.Status {
		t.Status = *p.Status
		changed = true
	}
	if p.AssignedEmployee != nil && (t.AssignedEmployee == nil || *t.AssignedEmployee != *p.AssignedEmployee) {
		ref := *p.AssignedEmployee
		t.AssignedEmployee = &ref
		changed = true
	}
	if p.DueDate != nil && !t.DueDate.Equal(p.DueDate.Time) {
		t.DueDate = *p.DueDate
		changed = true
	}
	if p.AssignedBy != nil && t.AssignedBy != *p.AssignedBy {
		t.AssignedBy = *p.AssignedBy
		changed = true
	}
	return changed
}

// TaskFields is the input for creating a task.
type TaskFields struct {
	Title            string `json:"title" validate:"required"`
	Description      string `json:"description,omitempty"`
	AssignedEmployee string `json:"assignedEmployee" validate:"required"`
	DueDate          Date   `json:"dueDate" validate:"required"`
	Status           Status `json:"status,omitempty" validate:"omitempty,oneof=pending in-progress completed"`
}

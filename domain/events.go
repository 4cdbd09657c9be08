package domain

// Realtime event names as they appear on the wire.
const (
	EventTaskAssigned  = "task:assigned"
	EventTaskUpdated   = "task:updated"
	EventTaskCompleted = "task:completed"
	EventDisconnect    = "disconnect"
	EventJoin          = "join"
)

// TaskAssigned carries the full task that was assigned to the user.
type TaskAssigned struct {
	Task
}

type TaskUpdated struct {
	TaskID  string    `json:"taskId"`
	Title   string    `json:"title,omitempty"`
	Updates TaskPatch `json:"updates"`
}

type TaskCompleted struct {
	TaskID string `json:"taskId"`
	Title  string `json:"title,omitempty"`
}

// Disconnect is delivered when the realtime connection drops. Err holds the
// transport failure when the drop was detected locally; it is nil for a
// disconnect frame sent by the server. Final is set when no reconnect will
// follow.
type Disconnect struct {
	Reason string `json:"reason"`
	Err    error  `json:"-"`
	Final  bool   `json:"-"`
}

// Join announces the user identity once per connection.
type Join struct {
	UserID string `json:"userId"`
}

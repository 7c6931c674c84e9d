package domain

const (
	BoardInit   = "board:init"
	TaskCreated = "task:created"
	TaskUpdated = "task:updated"
	TaskMoved   = "task:moved"
	TaskDeleted = "task:deleted"
	ErrorEvent  = "error"
)

// Event describes one committed mutation with enough data for a replica to
// apply the same effect.
type Event struct {
	Seq        uint64 `json:"seq"`
	Type       string `json:"type"`
	RequestID  string `json:"requestId,omitempty"`
	Task       *Task  `json:"task,omitempty"`
	TaskID     string `json:"taskId,omitempty"`
	Column     string `json:"column,omitempty"`
	FromColumn string `json:"fromColumn,omitempty"`
	ToColumn   string `json:"toColumn,omitempty"`
	Time       int64  `json:"time"`
}

// SnapshotMessage is the first message every connection receives.
type SnapshotMessage struct {
	Type string `json:"type"`
	Board
}

// ErrorMessage reports a rejected request to the connection that sent it.
type ErrorMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// NewErrorMessage builds the client-facing form of err.
func NewErrorMessage(requestID string, err error) ErrorMessage {
	return ErrorMessage{Type: ErrorEvent, RequestID: requestID, Code: Code(err), Message: err.Error()}
}

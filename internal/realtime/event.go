package realtime

import (
	"time"

	"github.com/google/uuid"
)

// ProgressEvent is published on every course state transition and progress message.
type ProgressEvent struct {
	CourseID   uuid.UUID `json:"course_id"`
	Status     string    `json:"status"`
	Stage      int       `json:"stage"`
	Percentage int       `json:"percentage"`
	Message    string    `json:"message,omitempty"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// Channel is the hub channel an event is delivered on.
func (e ProgressEvent) Channel() string { return e.CourseID.String() }

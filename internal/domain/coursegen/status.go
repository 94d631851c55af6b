package coursegen

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type StatusKind uint8

const (
	StatusUnknown StatusKind = iota
	StatusInitializing
	StatusProcessingDocuments
	StatusAnalyzingTask
	StatusGeneratingStructure
	StatusGeneratingContent
	StatusFinalizing
	StatusAwaitingApproval
	StatusCompleted
	StatusFailed
	StatusCancelled
)

var kindNames = map[StatusKind]string{
	StatusInitializing:        "initializing",
	StatusProcessingDocuments: "processing_documents",
	StatusAnalyzingTask:       "analyzing_task",
	StatusGeneratingStructure: "generating_structure",
	StatusGeneratingContent:   "generating_content",
	StatusFinalizing:          "finalizing",
	StatusCompleted:           "completed",
	StatusFailed:              "failed",
	StatusCancelled:           "cancelled",
}

var awaitingPattern = regexp.MustCompile(`^stage_(\d+)_awaiting_approval$`)

// Status is the course-level generation status. Stage is only set for
// StatusAwaitingApproval, where it names the stage that just finished.
type Status struct {
	Kind  StatusKind
	Stage Stage
}

var (
	Completed = Status{Kind: StatusCompleted}
	Failed    = Status{Kind: StatusFailed}
	Cancelled = Status{Kind: StatusCancelled}
)

func AwaitingApproval(stage Stage) Status {
	return Status{Kind: StatusAwaitingApproval, Stage: stage}
}

func (s Status) IsTerminal() bool {
	switch s.Kind {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

func (s Status) IsAwaitingApproval() bool { return s.Kind == StatusAwaitingApproval }

func (s Status) String() string {
	if s.Kind == StatusAwaitingApproval {
		return fmt.Sprintf("stage_%d_awaiting_approval", int(s.Stage))
	}
	if name, ok := kindNames[s.Kind]; ok {
		return name
	}
	return ""
}

func ParseStatus(raw string) (Status, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if m := awaitingPattern.FindStringSubmatch(v); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || !Stage(n).Valid() {
			return Status{}, fmt.Errorf("invalid approval stage in status %q", raw)
		}
		return AwaitingApproval(Stage(n)), nil
	}
	for kind, name := range kindNames {
		if name == v {
			return Status{Kind: kind}, nil
		}
	}
	return Status{}, fmt.Errorf("unknown status %q", raw)
}

func (s Status) Value() (driver.Value, error) {
	str := s.String()
	if str == "" {
		return nil, fmt.Errorf("cannot store unknown status")
	}
	return str, nil
}

func (s *Status) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	case nil:
		*s = Status{}
		return nil
	default:
		return fmt.Errorf("status: unsupported scan type %T", src)
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (Status) GormDataType() string { return "string" }

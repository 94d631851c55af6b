package coursegen

import (
	"fmt"
	"strings"
)

// Stage is the ordinal of a generation step. Zero means the course has not started.
type Stage int

const (
	StageNone Stage = iota
	StageInitialize
	StageDocumentProcessing
	StageStructureAnalysis
	StageStructureGeneration
	StageContentGeneration
	StageFinalization
)

const (
	FirstStage = StageInitialize
	LastStage  = StageFinalization
	TotalSteps = int(LastStage)
)

type JobType string

const (
	JobTypeInitialize          JobType = "initialize"
	JobTypeDocumentProcessing  JobType = "document_processing"
	JobTypeStructureAnalysis   JobType = "structure_analysis"
	JobTypeStructureGeneration JobType = "structure_generation"
	JobTypeContentGeneration   JobType = "content_generation"
	JobTypeFinalization        JobType = "finalization"
)

var stageJobTypes = map[Stage]JobType{
	StageInitialize:          JobTypeInitialize,
	StageDocumentProcessing:  JobTypeDocumentProcessing,
	StageStructureAnalysis:   JobTypeStructureAnalysis,
	StageStructureGeneration: JobTypeStructureGeneration,
	StageContentGeneration:   JobTypeContentGeneration,
	StageFinalization:        JobTypeFinalization,
}

func (s Stage) Valid() bool {
	return s >= FirstStage && s <= LastStage
}

func (s Stage) JobType() JobType {
	return stageJobTypes[s]
}

// WorkingStatus is the status a course holds while this stage's job is queued or running.
func (s Stage) WorkingStatus() Status {
	switch s {
	case StageInitialize, StageNone:
		return Status{Kind: StatusInitializing}
	case StageDocumentProcessing:
		return Status{Kind: StatusProcessingDocuments}
	case StageStructureAnalysis:
		return Status{Kind: StatusAnalyzingTask}
	case StageStructureGeneration:
		return Status{Kind: StatusGeneratingStructure}
	case StageContentGeneration:
		return Status{Kind: StatusGeneratingContent}
	case StageFinalization:
		return Status{Kind: StatusFinalizing}
	default:
		return Status{}
	}
}

func (s Stage) Next() Stage {
	if s >= LastStage {
		return StageNone
	}
	return s + 1
}

func (s Stage) String() string {
	if jt := s.JobType(); jt != "" {
		return fmt.Sprintf("stage %d (%s)", int(s), jt)
	}
	return fmt.Sprintf("stage %d", int(s))
}

func (t JobType) Stage() (Stage, bool) {
	for s, jt := range stageJobTypes {
		if jt == t {
			return s, true
		}
	}
	return StageNone, false
}

func ParseJobType(raw string) (JobType, error) {
	jt := JobType(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := jt.Stage(); !ok {
		return "", fmt.Errorf("unknown job type %q", raw)
	}
	return jt, nil
}

func AllJobTypes() []JobType {
	out := make([]JobType, 0, len(stageJobTypes))
	for s := FirstStage; s <= LastStage; s++ {
		out = append(out, stageJobTypes[s])
	}
	return out
}

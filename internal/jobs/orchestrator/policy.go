package orchestrator

import (
	"fmt"
	"sort"

	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
)

// DefaultApprovalStages are the stages that halt for a human by default.
var DefaultApprovalStages = []int{2, 3, 4, 5}

// ApprovalPolicy is the deployment table of stages that end in an approval gate.
type ApprovalPolicy struct {
	Enabled bool
	stages  map[types.Stage]bool
}

func NewApprovalPolicy(enabled bool, stages []int) (ApprovalPolicy, error) {
	p := ApprovalPolicy{Enabled: enabled, stages: map[types.Stage]bool{}}
	for _, n := range stages {
		s := types.Stage(n)
		// the last stage completes the course; gating it would never finish
		if !s.Valid() || s == types.LastStage {
			return ApprovalPolicy{}, fmt.Errorf("approval stage %d out of range 1..%d", n, int(types.LastStage)-1)
		}
		p.stages[s] = true
	}
	return p, nil
}

func DefaultApprovalPolicy() ApprovalPolicy {
	p, _ := NewApprovalPolicy(true, DefaultApprovalStages)
	return p
}

func (p ApprovalPolicy) RequiresApproval(s types.Stage) bool {
	return p.Enabled && p.stages[s]
}

func (p ApprovalPolicy) Stages() []int {
	out := make([]int, 0, len(p.stages))
	for s := range p.stages {
		out = append(out, int(s))
	}
	sort.Ints(out)
	return out
}

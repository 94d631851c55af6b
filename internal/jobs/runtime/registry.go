package runtime

import (
	"fmt"
	"sync"

	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
)

// Result is what a stage handler hands back to the orchestrator.
type Result struct {
	Output  map[string]any
	Message string
}

type Handler interface {
	Type() types.JobType
	Run(ctx *Context) (*Result, error)
}

type Registry struct {
	mu       sync.RWMutex
	handlers map[types.JobType]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[types.JobType]Handler)}
}

func (r *Registry) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("nil handler")
	}
	t := h.Type()
	if _, ok := t.Stage(); !ok {
		return fmt.Errorf("handler Type() %q is not a stage job type", t)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[t]; exists {
		return fmt.Errorf("handler already registered for job_type=%s", t)
	}
	r.handlers[t] = h
	return nil
}

func (r *Registry) Get(jobType types.JobType) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

// Missing lists the stage job types that have no handler.
func (r *Registry) Missing() []types.JobType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []types.JobType
	for _, t := range types.AllJobTypes() {
		if _, ok := r.handlers[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}

package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	repos "github.com/yungbote/coursegen-backend/internal/data/repos/coursegen"
	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/pkg/dbctx"
)

type FinalizeDeps struct {
	Lessons repos.LessonRepo
}

type FinalizeInput struct {
	CourseID  uuid.UUID
	Structure *types.CourseStructure
}

type FinalizeOutput struct {
	Title    string `json:"title"`
	Sections int    `json:"sections"`
	Lessons  int    `json:"lessons"`
	Words    int    `json:"words"`
}

// Finalize checks every lesson of the outline has a body and summarises the course.
func Finalize(ctx context.Context, deps FinalizeDeps, in FinalizeInput) (FinalizeOutput, error) {
	out := FinalizeOutput{}
	if deps.Lessons == nil || in.Structure == nil {
		return out, fmt.Errorf("finalize: missing deps")
	}
	stored, err := deps.Lessons.ListByCourse(dbctx.New(ctx), in.CourseID)
	if err != nil {
		return out, types.NewStorageError("list lessons", err)
	}
	bodies := make(map[types.LessonKey]string, len(stored))
	for _, l := range stored {
		bodies[l.Key()] = l.Body
	}
	var missing []string
	for _, l := range in.Structure.Lessons() {
		body := strings.TrimSpace(bodies[l.Key])
		if body == "" {
			missing = append(missing, l.Label.String())
			continue
		}
		out.Words += len(strings.Fields(body))
	}
	if len(missing) > 0 {
		return out, fmt.Errorf("lessons without content: %s", strings.Join(missing, ", "))
	}
	out.Title = in.Structure.Title
	out.Sections = len(in.Structure.Sections)
	out.Lessons = len(in.Structure.Lessons())
	return out, nil
}

package steps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/platform/logger"
)

type StructureDeps struct {
	Log *logger.Logger
	LLM LLM
}

type StructureInput struct {
	CourseID uuid.UUID
	Title    string
	Analysis json.RawMessage
	Settings map[string]any
}

var structureSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"title": map[string]any{"type": "string"},
		"sections": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title": map[string]any{"type": "string"},
					"lessons": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"title":   map[string]any{"type": "string"},
								"summary": map[string]any{"type": "string"},
							},
							"required":             []string{"title", "summary"},
							"additionalProperties": false,
						},
					},
				},
				"required":             []string{"title", "lessons"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"title", "sections"},
	"additionalProperties": false,
}

type rawStructure struct {
	Title    string `json:"title"`
	Sections []struct {
		Title   string `json:"title"`
		Lessons []struct {
			Title   string `json:"title"`
			Summary string `json:"summary"`
		} `json:"lessons"`
	} `json:"sections"`
}

// GenerateStructure asks the model for sections and lessons and assigns each
// lesson its storage key and position label.
func GenerateStructure(ctx context.Context, deps StructureDeps, in StructureInput) (*types.CourseStructure, error) {
	if deps.LLM == nil || deps.Log == nil {
		return nil, fmt.Errorf("structure: missing deps")
	}
	analysis := "{}"
	if len(in.Analysis) > 0 {
		analysis = string(in.Analysis)
	}
	user := fmt.Sprintf("Course title: %s\nAuthor settings: %v\nTask analysis:\n%s", in.Title, in.Settings, analysis)
	obj, err := deps.LLM.GenerateJSON(ctx, "You design the section and lesson outline of a course.", user, "course_structure", structureSchema)
	if err != nil {
		return nil, types.NewProviderError("openai", "structure", err)
	}
	var raw rawStructure
	if err := fromMap(obj, &raw); err != nil {
		return nil, types.NewProviderError("openai", "structure", err)
	}
	return buildStructure(raw, in.Title)
}

// buildStructure numbers the outline. Sections or lessons with blank titles are dropped.
func buildStructure(raw rawStructure, fallbackTitle string) (*types.CourseStructure, error) {
	out := &types.CourseStructure{Title: strings.TrimSpace(raw.Title)}
	if out.Title == "" {
		out.Title = fallbackTitle
	}
	for _, sec := range raw.Sections {
		if strings.TrimSpace(sec.Title) == "" {
			continue
		}
		outline := types.SectionOutline{Title: strings.TrimSpace(sec.Title)}
		for _, l := range sec.Lessons {
			if strings.TrimSpace(l.Title) == "" {
				continue
			}
			label, err := types.NewPositionLabel(len(out.Sections)+1, len(outline.Lessons)+1)
			if err != nil {
				return nil, err
			}
			outline.Lessons = append(outline.Lessons, types.LessonOutline{
				Key:     types.NewLessonKey(),
				Label:   label,
				Title:   strings.TrimSpace(l.Title),
				Summary: strings.TrimSpace(l.Summary),
			})
		}
		if len(outline.Lessons) > 0 {
			out.Sections = append(out.Sections, outline)
		}
	}
	if len(out.Sections) == 0 {
		return nil, types.NewProviderError("openai", "structure", errors.New("model returned an outline without lessons"))
	}
	return out, nil
}

// DecodeStructure reads a stored structure_result.
func DecodeStructure(raw []byte) (*types.CourseStructure, error) {
	if len(raw) == 0 {
		return nil, &types.InputError{Field: "structure_result", Reason: "missing"}
	}
	var s types.CourseStructure
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, &types.InputError{Field: "structure_result", Reason: err.Error()}
	}
	if len(s.Lessons()) == 0 {
		return nil, &types.InputError{Field: "structure_result", Reason: "no lessons"}
	}
	return &s, nil
}

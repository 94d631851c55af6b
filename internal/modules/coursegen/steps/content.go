package steps

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	repos "github.com/yungbote/coursegen-backend/internal/data/repos/coursegen"
	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursegen-backend/internal/platform/logger"
)

const DefaultContentConcurrency = 4

type ContentDeps struct {
	Log     *logger.Logger
	LLM     LLM
	Lessons repos.LessonRepo
}

type ContentInput struct {
	CourseID    uuid.UUID
	Structure   *types.CourseStructure
	Concurrency int
	Canceled    func() bool
	// Beat is called after each lesson.
	Beat func() error
}

type ContentOutput struct {
	LessonsTotal     int `json:"lessons_total"`
	LessonsGenerated int `json:"lessons_generated"`
	LessonsSkipped   int `json:"lessons_skipped"`
}

/*
GenerateContent writes the body of every lesson in the outline. Lessons that
already have content are skipped, so a restarted stage only pays for what is
missing. Lessons are generated concurrently and persisted as each finishes.
*/
func GenerateContent(ctx context.Context, deps ContentDeps, in ContentInput) (ContentOutput, error) {
	out := ContentOutput{}
	if deps.Log == nil || deps.LLM == nil || deps.Lessons == nil || in.Structure == nil {
		return out, fmt.Errorf("content: missing deps")
	}
	lessons := in.Structure.Lessons()
	out.LessonsTotal = len(lessons)

	existing, err := deps.Lessons.ListByCourse(dbctx.New(ctx), in.CourseID)
	if err != nil {
		return out, types.NewStorageError("list lessons", err)
	}
	done := make(map[types.LessonKey]bool, len(existing))
	for _, l := range existing {
		if strings.TrimSpace(l.Body) != "" {
			done[l.Key()] = true
		}
	}

	limit := in.Concurrency
	if limit <= 0 {
		limit = DefaultContentConcurrency
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	var mu sync.Mutex
	for _, l := range lessons {
		if done[l.Key] {
			out.LessonsSkipped++
			continue
		}
		g.Go(func() error {
			if canceled(in.Canceled) {
				return errCanceled
			}
			body, err := deps.LLM.GenerateText(gctx, lessonSystemPrompt, lessonPrompt(in.Structure.Title, l))
			if err != nil {
				return types.NewProviderError("openai", "lesson "+l.Label.String(), err)
			}
			row := types.NewLessonContent(in.CourseID, l.Key, l.Label, l.Title, strings.TrimSpace(body))
			if err := deps.Lessons.Upsert(dbctx.New(gctx), []*types.LessonContent{row}); err != nil {
				return types.NewStorageError("store lesson", err)
			}
			mu.Lock()
			out.LessonsGenerated++
			mu.Unlock()
			if in.Beat != nil {
				if err := in.Beat(); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	deps.Log.Info("Lesson content generated", "course_id", in.CourseID, "generated", out.LessonsGenerated, "skipped", out.LessonsSkipped)
	return out, nil
}

const lessonSystemPrompt = "You write one lesson of a course in markdown. Teach the lesson's topic completely and stay within its scope."

func lessonPrompt(courseTitle string, l types.LessonOutline) string {
	return fmt.Sprintf("Course: %s\nLesson %s: %s\nLesson summary: %s", courseTitle, l.Label, l.Title, l.Summary)
}

package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	repos "github.com/yungbote/coursegen-backend/internal/data/repos/coursegen"
	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/modules/coursegen/budget"
	"github.com/yungbote/coursegen-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursegen-backend/internal/platform/logger"
)

// analysisContextTokens caps the source material handed to the analysis prompt.
const analysisContextTokens = 60_000

type BudgetEnsurer interface {
	Ensure(ctx context.Context, courseID uuid.UUID) (*types.BudgetAllocation, error)
}

type AnalyzeDeps struct {
	Log       *logger.Logger
	Documents repos.DocumentRepo
	Budget    BudgetEnsurer
	// LLMFor returns the client for the allocation's model.
	LLMFor    func(model string) LLM
	Summarize SummarizeDeps
}

type AnalyzeInput struct {
	CourseID       uuid.UUID
	Title          string
	Settings       map[string]any
	Threshold      float64
	SummaryRetries int
	Debug          bool
	Canceled       func() bool
}

type DocumentPlan struct {
	FileID       uuid.UUID           `json:"file_id"`
	FileName     string              `json:"file_name"`
	Priority     types.PriorityClass `json:"priority,omitempty"`
	Tokens       int                 `json:"tokens"`
	Mode         types.BudgetMode    `json:"mode"`
	Budget       int                 `json:"budget"`
	QualityScore *float64            `json:"quality_score,omitempty"`
	Attempts     int                 `json:"summary_attempts,omitempty"`
}

type AnalyzeOutput struct {
	Title      string         `json:"title"`
	Tier       string         `json:"tier"`
	Model      string         `json:"model"`
	HighBudget int            `json:"high_budget"`
	LowBudget  int            `json:"low_budget"`
	Documents  []DocumentPlan `json:"documents"`
	Analysis   map[string]any `json:"analysis"`
}

var analysisSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"audience":      map[string]any{"type": "string"},
		"difficulty":    map[string]any{"type": "string", "enum": []string{"beginner", "intermediate", "advanced"}},
		"objectives":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"topics":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"prerequisites": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
	"required":             []string{"audience", "difficulty", "objectives", "topics", "prerequisites"},
	"additionalProperties": false,
}

/*
Analyze runs the budget allocation for the course, fits every processed
document into its class pool (summarizing and quality-gating the ones that do
not fit) and asks the model for a task analysis over the resulting material.
*/
func Analyze(ctx context.Context, deps AnalyzeDeps, in AnalyzeInput) (AnalyzeOutput, error) {
	out := AnalyzeOutput{Title: in.Title}
	if deps.Log == nil || deps.Documents == nil || deps.Budget == nil || deps.LLMFor == nil {
		return out, fmt.Errorf("analyze: missing deps")
	}
	alloc, err := deps.Budget.Ensure(ctx, in.CourseID)
	if err != nil {
		return out, types.NewStorageError("budget", err)
	}
	out.Tier, out.Model = alloc.Tier, alloc.Model
	out.HighBudget, out.LowBudget = alloc.HighBudget, alloc.LowBudget
	llm := deps.LLMFor(alloc.Model)
	sum := deps.Summarize
	sum.LLM = llm

	docs, err := deps.Documents.ListByCourse(dbctx.New(ctx), in.CourseID)
	if err != nil {
		return out, types.NewStorageError("list documents", err)
	}
	var material []string
	for _, d := range docs {
		if d.Status != types.DocumentProcessed {
			continue
		}
		if canceled(in.Canceled) {
			return out, errCanceled
		}
		b := budget.DocumentBudgetFor(alloc, d.Priority, d.TokenCount)
		plan := DocumentPlan{FileID: d.ID, FileName: d.FileName, Priority: d.Priority, Tokens: d.TokenCount, Mode: b.Mode, Budget: b.Budget}
		text := d.ProcessedText
		if b.Mode == types.BudgetModeSummary {
			res, err := SummarizeWithGate(ctx, sum, SummarizeInput{
				CourseID:    in.CourseID,
				FileID:      d.ID,
				Text:        d.ProcessedText,
				BudgetToken: b.Budget,
				Threshold:   in.Threshold,
				MaxAttempts: in.SummaryRetries,
				Debug:       in.Debug,
			})
			if err != nil {
				return out, err
			}
			if err := deps.Documents.SetSummary(dbctx.New(ctx), d.ID, res.Summary); err != nil {
				return out, types.NewStorageError("store summary", err)
			}
			score := res.Check.Score
			plan.QualityScore = &score
			plan.Attempts = res.Attempts
			text = res.Summary
		}
		out.Documents = append(out.Documents, plan)
		material = append(material, fmt.Sprintf("## %s\n%s", d.FileName, text))
	}

	if canceled(in.Canceled) {
		return out, errCanceled
	}
	user := fmt.Sprintf("Course title: %s\nAuthor settings: %v\n\nSource material:\n%s",
		in.Title, in.Settings, TruncateTokens(strings.Join(material, "\n\n"), analysisContextTokens))
	if len(material) == 0 {
		user = fmt.Sprintf("Course title: %s\nAuthor settings: %v\n\nThere is no source material; plan from the topic alone.", in.Title, in.Settings)
	}
	analysis, err := llm.GenerateJSON(ctx, "You analyse the teaching task for a new course.", user, "course_analysis", analysisSchema)
	if err != nil {
		return out, types.NewProviderError("openai", "analyze", err)
	}
	out.Analysis = analysis
	deps.Log.Info("Task analysis complete", "course_id", in.CourseID, "tier", alloc.Tier, "documents", len(out.Documents))
	return out, nil
}

func (o AnalyzeOutput) Map() (map[string]any, error) { return toMap(o) }

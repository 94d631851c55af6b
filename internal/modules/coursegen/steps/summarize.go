package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	repos "github.com/yungbote/coursegen-backend/internal/data/repos/coursegen"
	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/modules/coursegen/quality"
	"github.com/yungbote/coursegen-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursegen-backend/internal/platform/logger"
)

const DefaultSummaryAttempts = 3

// SummaryValidator scores a summary against its original.
type SummaryValidator interface {
	ValidateSummary(ctx context.Context, original, summary string, opts quality.Options) (*types.QualityCheckResult, error)
}

type SummarizeDeps struct {
	Log       *logger.Logger
	LLM       LLM
	Validator SummaryValidator
	Checks    repos.QualityCheckRepo
}

type SummarizeInput struct {
	CourseID    uuid.UUID
	FileID      uuid.UUID
	Text        string
	BudgetToken int
	Threshold   float64
	MaxAttempts int
	Debug       bool
}

type SummarizeOutput struct {
	Summary  string                    `json:"-"`
	Attempts int                       `json:"attempts"`
	Check    *types.QualityCheckResult `json:"check"`
}

/*
SummarizeWithGate writes a summary within the token budget and validates it.
Each attempt is persisted as a quality_check row. A summary that never reaches
the threshold fails with QualityGateError carrying the best score seen.
*/
func SummarizeWithGate(ctx context.Context, deps SummarizeDeps, in SummarizeInput) (SummarizeOutput, error) {
	out := SummarizeOutput{}
	if deps.LLM == nil || deps.Validator == nil || deps.Checks == nil || deps.Log == nil {
		return out, fmt.Errorf("summarize: missing deps")
	}
	attempts := in.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultSummaryAttempts
	}
	if strings.TrimSpace(in.Text) == "" {
		return out, &types.InputError{Field: "text", Reason: "nothing to summarize"}
	}
	opts := quality.Options{Threshold: in.Threshold, Debug: in.Debug}

	best := 0.0
	threshold := in.Threshold
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		summary, err := deps.LLM.GenerateText(ctx, summarySystemPrompt(in.BudgetToken, attempt), TruncateTokens(in.Text, in.BudgetToken*8))
		if err != nil {
			return out, types.NewProviderError("openai", "summarize", err)
		}
		summary = TruncateTokens(summary, in.BudgetToken)
		if strings.TrimSpace(summary) == "" {
			return out, types.NewProviderError("openai", "summarize", errors.New("model returned an empty summary"))
		}

		res, err := deps.Validator.ValidateSummary(ctx, in.Text, summary, opts)
		if err != nil {
			return out, gateFailure(err)
		}
		if err := deps.Checks.Create(dbctx.New(ctx), types.NewQualityCheck(in.CourseID, in.FileID, attempt, res)); err != nil {
			return out, types.NewStorageError("record quality check", err)
		}
		out.Attempts = attempt
		out.Check = res
		threshold = res.Threshold
		best = max(best, res.Score)
		if res.Passed {
			out.Summary = summary
			return out, nil
		}
		deps.Log.Warn("Summary below quality threshold",
			"course_id", in.CourseID,
			"file_id", in.FileID,
			"attempt", attempt,
			"score", res.Score,
			"threshold", res.Threshold,
		)
	}
	return out, &types.QualityGateError{FileID: in.FileID, Score: best, Threshold: threshold, Attempts: attempts}
}

// gateFailure gives validator sentinels a failure category. Empty input and bad
// vectors come from the model or the embedding provider.
func gateFailure(err error) error {
	switch {
	case errors.Is(err, quality.ErrInvalidThreshold):
		return &types.InputError{Field: "threshold", Reason: err.Error()}
	case errors.Is(err, quality.ErrEmptyInput), errors.Is(err, quality.ErrEmptyVector), errors.Is(err, quality.ErrDimensionMismatch):
		return types.NewProviderError("embeddings", "validate summary", err)
	default:
		return err
	}
}

func summarySystemPrompt(budgetTokens, attempt int) string {
	p := fmt.Sprintf("Summarize the document for a course author in at most %d tokens. Keep every key concept, definition and example.", budgetTokens)
	if attempt > 1 {
		p += " A previous summary lost too much of the source. Stay closer to the original wording and structure."
	}
	return p
}

package steps

import (
	"context"
	"fmt"

	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
)

// classifySampleTokens bounds how much of a document the classifier sees.
const classifySampleTokens = 3000

var prioritySchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"priority": map[string]any{"type": "string", "enum": []string{string(types.PriorityHigh), string(types.PriorityLow)}},
		"reason":   map[string]any{"type": "string"},
	},
	"required":             []string{"priority", "reason"},
	"additionalProperties": false,
}

// ClassifyPriority asks the model whether a document is core (HIGH) or supporting (LOW) material.
func ClassifyPriority(ctx context.Context, llm LLM, courseTitle, fileName, text string) (types.PriorityClass, error) {
	if llm == nil {
		return "", fmt.Errorf("classify: llm required")
	}
	system := "You sort source documents for a course. HIGH means core material the course is built on. LOW means supporting or reference material."
	user := fmt.Sprintf("Course: %s\nFile: %s\n\n%s", courseTitle, fileName, TruncateTokens(text, classifySampleTokens))
	obj, err := llm.GenerateJSON(ctx, system, user, "document_priority", prioritySchema)
	if err != nil {
		return "", types.NewProviderError("openai", "classify", err)
	}
	p, err := types.ParsePriorityClass(stringField(obj, "priority"))
	if err != nil {
		return "", types.NewProviderError("openai", "classify", err)
	}
	return p, nil
}

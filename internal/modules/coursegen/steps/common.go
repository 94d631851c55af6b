package steps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
)

// LLM is the subset of the model client the steps call.
type LLM interface {
	GenerateText(ctx context.Context, system string, user string) (string, error)
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)
}

// EstimateTokens approximates the model token count of text at four characters per token.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// TruncateTokens cuts text to roughly maxTokens using the same estimate.
func TruncateTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	limit := maxTokens * 4
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit])
}

// toMap round-trips v through JSON so it can be stored as a stage output.
func toMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func fromMap(m map[string]any, dst any) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// CourseTitle resolves the title: payload title, then settings.title, then
// settings.topic, then fallback.
func CourseTitle(payloadTitle *string, settings map[string]any, fallback string) types.Resolution[string] {
	var fromPayload types.Candidate[string]
	if payloadTitle != nil {
		fromPayload = types.Present("payload.title", *payloadTitle)
	} else {
		fromPayload = types.Missing[string]("payload.title")
	}
	title, titleOK := settings["title"].(string)
	topic, topicOK := settings["topic"].(string)
	return types.Resolve(types.BlankString,
		fromPayload,
		types.PresentIf("settings.title", title, titleOK),
		types.PresentIf("settings.topic", topic, topicOK),
		types.Present("fallback", fallback),
	)
}

func canceled(fn func() bool) bool {
	return fn != nil && fn()
}

var errCanceled = errors.New("course generation was cancelled")

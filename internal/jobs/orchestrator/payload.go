package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/platform/ctxutil"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// payloadSchema returns an empty value of the payload type a job type requires.
func payloadSchema(jt types.JobType) any {
	switch jt {
	case types.JobTypeDocumentProcessing:
		return &types.DocumentProcessingPayload{}
	case types.JobTypeStructureAnalysis:
		return &types.StructureAnalysisPayload{}
	default:
		return &types.JobPayload{}
	}
}

func commonPart(p any) *types.JobPayload {
	switch v := p.(type) {
	case *types.DocumentProcessingPayload:
		return &v.JobPayload
	case *types.StructureAnalysisPayload:
		return &v.JobPayload
	case *types.JobPayload:
		return v
	default:
		return nil
	}
}

// ValidatePayload decodes raw against the job type's schema and checks it
// belongs to courseID. It returns the decoded payload.
func ValidatePayload(courseID uuid.UUID, jt types.JobType, raw json.RawMessage) (any, error) {
	if _, ok := jt.Stage(); !ok {
		return nil, &ValidationError{JobType: jt, Err: fmt.Errorf("unknown job type %q", jt)}
	}
	if len(raw) == 0 {
		return nil, &ValidationError{JobType: jt, Err: fmt.Errorf("payload is required")}
	}
	p := payloadSchema(jt)
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, &ValidationError{JobType: jt, Err: fmt.Errorf("decode payload: %w", err)}
	}
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s(%s)", fe.Field(), fe.Tag()))
			}
			return nil, &ValidationError{JobType: jt, Fields: fields}
		}
		return nil, &ValidationError{JobType: jt, Err: err}
	}
	common := commonPart(p)
	if common.JobType != jt {
		return nil, &ValidationError{JobType: jt, Fields: []string{"jobType(mismatch)"}}
	}
	if common.CourseID != courseID {
		return nil, &ValidationError{JobType: jt, Fields: []string{"courseId(mismatch)"}}
	}
	return p, nil
}

func basePayload(ctx context.Context, st *types.CourseGenerationState, jt types.JobType, now time.Time) types.JobPayload {
	p := types.JobPayload{
		JobType:        jt,
		OrganizationID: st.OrganizationID,
		CourseID:       st.CourseID,
		UserID:         st.UserID,
		CreatedAt:      now,
	}
	if td := ctxutil.GetTraceData(ctx); td != nil {
		p.TraceID = td.TraceID
		p.RequestID = td.RequestID
	}
	return p
}

// ChunkDefaults is the deployment fallback for document chunking parameters.
type ChunkDefaults struct {
	Size    int
	Overlap int
}

func settingInt(settings map[string]any, key string) (int, bool) {
	switch v := settings[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	default:
		return 0, false
	}
}

func settingString(settings map[string]any, key string) (string, bool) {
	v, ok := settings[key].(string)
	return v, ok
}

func documentPayload(base types.JobPayload, doc *types.CourseDocument, settings map[string]any, defaults ChunkDefaults) *types.DocumentProcessingPayload {
	sizeFromSettings, sizeOK := settingInt(settings, "chunkSize")
	overlapFromSettings, overlapOK := settingInt(settings, "chunkOverlap")
	size := types.Resolve(types.NonPositive,
		types.PresentIf("settings.chunkSize", sizeFromSettings, sizeOK),
		types.Present("default", defaults.Size),
	)
	overlap := types.Resolve(types.NonPositive,
		types.PresentIf("settings.chunkOverlap", overlapFromSettings, overlapOK),
		types.Present("default", defaults.Overlap),
	)
	mime := types.Resolve(types.BlankString,
		types.Present("document.mime_type", doc.MimeType),
		types.Present("default", "application/octet-stream"),
	)
	return &types.DocumentProcessingPayload{
		JobPayload:   base,
		FileID:       doc.ID,
		FilePath:     doc.FilePath,
		MimeType:     mime.Value,
		ChunkSize:    size.Value,
		ChunkOverlap: overlap.Value,
	}
}

func analysisPayload(base types.JobPayload, settings map[string]any) *types.StructureAnalysisPayload {
	p := &types.StructureAnalysisPayload{JobPayload: base, Settings: settings}
	title, titleOK := settingString(settings, "title")
	topic, topicOK := settingString(settings, "topic")
	if r := types.Resolve(types.BlankString,
		types.PresentIf("settings.title", title, titleOK),
		types.PresentIf("settings.topic", topic, topicOK),
	); r.Found {
		v := r.Value
		p.Title = &v
	}
	if hook, ok := settingString(settings, "webhookUrl"); ok && strings.TrimSpace(hook) != "" {
		p.WebhookURL = &hook
	}
	return p
}

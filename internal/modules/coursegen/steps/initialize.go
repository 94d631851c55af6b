package steps

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	repos "github.com/yungbote/coursegen-backend/internal/data/repos/coursegen"
	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/pkg/dbctx"
)

type InitializeDeps struct {
	Documents repos.DocumentRepo
}

type InitializeInput struct {
	CourseID uuid.UUID
	Settings map[string]any
}

type InitializeOutput struct {
	HasDocuments  bool   `json:"has_documents"`
	DocumentCount int    `json:"document_count"`
	Title         string `json:"title,omitempty"`
	TitleSource   string `json:"title_source,omitempty"`
}

// Initialize checks the course has something to build from: documents or a title/topic.
func Initialize(ctx context.Context, deps InitializeDeps, in InitializeInput) (InitializeOutput, error) {
	out := InitializeOutput{}
	if deps.Documents == nil {
		return out, fmt.Errorf("initialize: missing deps")
	}
	docs, err := deps.Documents.ListByCourse(dbctx.New(ctx), in.CourseID)
	if err != nil {
		return out, types.NewStorageError("list documents", err)
	}
	out.DocumentCount = len(docs)
	out.HasDocuments = len(docs) > 0

	title := CourseTitle(nil, in.Settings, "")
	if title.Found {
		out.Title, out.TitleSource = title.Value, title.Source
	}
	if !out.HasDocuments && !title.Found {
		return out, &types.InputError{Field: "settings.topic", Reason: "a course without documents needs a title or topic"}
	}
	return out, nil
}

package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	repos "github.com/yungbote/coursegen-backend/internal/data/repos/coursegen"
	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursegen-backend/internal/platform/logger"
)

type ProcessDocumentDeps struct {
	Log       *logger.Logger
	Documents repos.DocumentRepo
	Fetcher   Fetcher
	Converter Converter
	LLM       LLM
}

type ProcessDocumentInput struct {
	CourseID     uuid.UUID
	FileID       uuid.UUID
	FilePath     string
	MimeType     string
	ChunkSize    int
	ChunkOverlap int
	CourseTitle  string
	// Canceled is polled before the model call.
	Canceled func() bool
}

type ProcessDocumentOutput struct {
	FileID          uuid.UUID           `json:"file_id"`
	MimeType        string              `json:"mime_type"`
	Method          string              `json:"method"`
	Characters      int                 `json:"characters"`
	Tokens          int                 `json:"tokens"`
	Chunks          int                 `json:"chunks"`
	Priority        types.PriorityClass `json:"priority,omitempty"`
	PriorityDerived bool                `json:"priority_derived"`
}

/*
ProcessDocument fetches one source file, converts it to text, chunks it and
records the token count. A document without a priority class is classified
by the model; an existing class is never overwritten.

Failures mark the document row as errored before they are returned so a later
restart can reset exactly the documents that need another pass.
*/
func ProcessDocument(ctx context.Context, deps ProcessDocumentDeps, in ProcessDocumentInput) (ProcessDocumentOutput, error) {
	out := ProcessDocumentOutput{FileID: in.FileID}
	if deps.Log == nil || deps.Documents == nil {
		return out, fmt.Errorf("process_document: missing deps")
	}
	dbc := dbctx.New(ctx)
	doc, err := deps.Documents.GetByID(dbc, in.FileID)
	if err != nil {
		return out, types.NewStorageError("load document", err)
	}
	if doc == nil || doc.CourseID != in.CourseID {
		return out, &types.InputError{Field: "fileId", Reason: fmt.Sprintf("document %s is not attached to course %s", in.FileID, in.CourseID)}
	}
	log := deps.Log.With("course_id", in.CourseID, "file_id", in.FileID)

	res, err := processDocument(ctx, deps, in, doc, &out)
	if err != nil {
		if mErr := deps.Documents.MarkError(dbc, doc.ID, err.Error()); mErr != nil {
			log.Warn("Failed to flag document error", "error", mErr)
		}
		return out, err
	}
	log.Info("Document processed", "method", res.Method, "tokens", out.Tokens, "chunks", out.Chunks, "priority", out.Priority)
	return out, nil
}

func processDocument(ctx context.Context, deps ProcessDocumentDeps, in ProcessDocumentInput, doc *types.CourseDocument, out *ProcessDocumentOutput) (*Converted, error) {
	path := strings.TrimSpace(in.FilePath)
	if path == "" {
		path = doc.FilePath
	}
	data, err := deps.Fetcher.Fetch(ctx, path)
	if err != nil {
		return nil, err
	}
	declared := in.MimeType
	if declared == "" {
		declared = doc.MimeType
	}
	conv, err := deps.Converter.Convert(ctx, data, declared)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(conv.Text)
	if text == "" {
		return nil, &types.InputError{Field: "file", Reason: "no text could be extracted"}
	}

	chunks := Chunk(text, in.ChunkSize, in.ChunkOverlap)
	out.MimeType = conv.MimeType
	out.Method = conv.Method
	out.Characters = len([]rune(text))
	out.Tokens = EstimateTokens(text)
	out.Chunks = len(chunks)
	out.Priority = doc.Priority

	if doc.Priority == "" {
		if canceled(in.Canceled) {
			return nil, errCanceled
		}
		p, err := ClassifyPriority(ctx, deps.LLM, in.CourseTitle, doc.FileName, text)
		if err != nil {
			return nil, err
		}
		set, err := deps.Documents.SetPriorityIfUnset(dbctx.New(ctx), doc.ID, p)
		if err != nil {
			return nil, types.NewStorageError("set priority", err)
		}
		out.PriorityDerived = set
		if set {
			out.Priority = p
		} else if cur, err := deps.Documents.GetByID(dbctx.New(ctx), doc.ID); err == nil && cur != nil {
			out.Priority = cur.Priority
		}
	}

	if err := deps.Documents.MarkProcessed(dbctx.New(ctx), doc.ID, text, out.Tokens, out.Chunks); err != nil {
		return nil, types.NewStorageError("mark processed", err)
	}
	return conv, nil
}

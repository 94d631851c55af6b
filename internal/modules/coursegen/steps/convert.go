package steps

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/platform/gcp"
)

// Converter turns source bytes into plain text. PDFs go through Document AI,
// images through Vision OCR; text formats are read directly.
type Converter struct {
	Documents gcp.Document
	Vision    gcp.Vision
}

type Converted struct {
	Text     string
	MimeType string
	Method   string
}

// DetectMime sniffs data and falls back to the declared type when the content is not recognised.
func DetectMime(data []byte, declared string) string {
	detected := mimetype.Detect(data)
	if detected.Is("application/octet-stream") && strings.TrimSpace(declared) != "" {
		return strings.ToLower(strings.TrimSpace(declared))
	}
	return detected.String()
}

func isTextual(data []byte, mime string) bool {
	for m := mimetype.Lookup(baseMime(mime)); m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	switch baseMime(mime) {
	case "text/markdown", "text/x-markdown", "application/json", "text/csv", "text/html":
		return true
	}
	return strings.HasPrefix(mime, "text/") && utf8.Valid(data)
}

func baseMime(mime string) string {
	base, _, _ := strings.Cut(mime, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

func (c Converter) Convert(ctx context.Context, data []byte, declaredMime string) (*Converted, error) {
	if len(data) == 0 {
		return nil, &types.InputError{Field: "file", Reason: "empty"}
	}
	mime := DetectMime(data, declaredMime)
	switch {
	case isTextual(data, mime):
		return &Converted{Text: gcp.NormalizeText(string(data)), MimeType: mime, Method: "direct"}, nil
	case baseMime(mime) == "application/pdf":
		if c.Documents == nil {
			return nil, &types.InputError{Field: "mimeType", Reason: "pdf conversion is not configured"}
		}
		text, err := c.Documents.ProcessBytes(ctx, "application/pdf", data)
		if err != nil {
			return nil, types.NewProviderError("documentai", "process", err)
		}
		return &Converted{Text: text, MimeType: mime, Method: "documentai"}, nil
	case strings.HasPrefix(baseMime(mime), "image/"):
		if c.Vision == nil {
			return nil, &types.InputError{Field: "mimeType", Reason: "image OCR is not configured"}
		}
		text, err := c.Vision.OCRImageBytes(ctx, data)
		if err != nil {
			return nil, types.NewProviderError("vision", "ocr", err)
		}
		return &Converted{Text: text, MimeType: mime, Method: "vision"}, nil
	default:
		return nil, &types.InputError{Field: "mimeType", Reason: "unsupported source type " + mime}
	}
}

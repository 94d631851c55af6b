package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"

	"github.com/yungbote/coursegen-backend/internal/platform/envutil"
	"github.com/yungbote/coursegen-backend/internal/platform/logger"
)

// Document converts PDFs and office scans to plain text with a Document AI OCR processor.
type Document interface {
	ProcessBytes(ctx context.Context, mimeType string, data []byte) (string, error)
	Close() error
}

type DocumentConfig struct {
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string
	Timeout          time.Duration
}

func LoadDocumentConfig(log *logger.Logger) DocumentConfig {
	return DocumentConfig{
		ProjectID:        envutil.String("DOCUMENTAI_PROJECT_ID", "", log),
		Location:         envutil.String("DOCUMENTAI_LOCATION", "us", log),
		ProcessorID:      envutil.String("DOCUMENTAI_PROCESSOR_ID", "", log),
		ProcessorVersion: envutil.String("DOCUMENTAI_PROCESSOR_VERSION", "", log),
		Timeout:          envutil.Duration("DOCUMENTAI_TIMEOUT", 3*time.Minute, log),
	}
}

func (c DocumentConfig) Enabled() bool {
	return c.ProjectID != "" && c.ProcessorID != ""
}

func (c DocumentConfig) processorName() string {
	base := fmt.Sprintf("projects/%s/locations/%s/processors/%s", c.ProjectID, c.Location, c.ProcessorID)
	if c.ProcessorVersion != "" {
		return base + "/processorVersions/" + c.ProcessorVersion
	}
	return base
}

type documentService struct {
	log       *logger.Logger
	cfg       DocumentConfig
	docClient *documentai.DocumentProcessorClient
}

func NewDocument(ctx context.Context, log *logger.Logger, cfg DocumentConfig) (Document, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if !cfg.Enabled() {
		return nil, fmt.Errorf("document ai processor not configured")
	}
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)
	opts := append([]option.ClientOption{option.WithEndpoint(endpoint)}, ClientOptionsFromEnv()...)
	c, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}
	slog := log.With("service", "gcp.Document")
	slog.Info("Document AI initialized", "endpoint", endpoint, "processor", cfg.processorName())
	return &documentService{log: slog, cfg: cfg, docClient: c}, nil
}

func (s *documentService) Close() error {
	if s == nil || s.docClient == nil {
		return nil
	}
	return s.docClient.Close()
}

func (s *documentService) ProcessBytes(ctx context.Context, mimeType string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	if strings.TrimSpace(mimeType) == "" {
		mimeType = "application/pdf"
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	resp, err := s.docClient.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: s.cfg.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{Content: data, MimeType: mimeType},
		},
	})
	if err != nil {
		return "", fmt.Errorf("documentai ProcessDocument: %w", err)
	}
	if resp == nil || resp.Document == nil {
		return "", nil
	}
	s.log.Debug("Document AI processed document", "mime_type", mimeType, "pages", len(resp.Document.GetPages()))
	return NormalizeText(resp.Document.GetText()), nil
}

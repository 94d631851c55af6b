package app

import (
	"context"
	"fmt"

	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/coursegen-backend/internal/platform/envutil"
	"github.com/yungbote/coursegen-backend/internal/platform/gcp"
	"github.com/yungbote/coursegen-backend/internal/platform/logger"
	"github.com/yungbote/coursegen-backend/internal/platform/openai"
	"github.com/yungbote/coursegen-backend/internal/realtime/bus"
	"github.com/yungbote/coursegen-backend/internal/temporalx"
)

type Clients struct {
	OpenAI      openai.Client
	GcsReader   gcp.ObjectReader
	GcpDocument gcp.Document
	GcpVision   gcp.Vision
	Bus         bus.Bus
	Temporal    temporalsdkclient.Client
	TemporalCfg temporalx.Config
}

// wireClients builds provider clients. OpenAI is required; the GCP clients are
// optional and documents needing a missing one fail at conversion time.
func wireClients(ctx context.Context, log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	oa, err := openai.NewClient(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init openai client: %w", err)
	}
	out.OpenAI = oa

	if envutil.Bool("GCS_ENABLED", true, log) {
		if r, err := gcp.NewObjectReader(ctx, log); err != nil {
			log.Warn("Cloud Storage unavailable; gs:// sources will fail", "error", err)
		} else {
			out.GcsReader = r
		}
	}
	if dcfg := gcp.LoadDocumentConfig(log); dcfg.Enabled() {
		d, err := gcp.NewDocument(ctx, log, dcfg)
		if err != nil {
			return Clients{}, fmt.Errorf("init document ai: %w", err)
		}
		out.GcpDocument = d
	} else {
		log.Info("Document AI not configured; PDF conversion disabled")
	}
	if envutil.Bool("VISION_ENABLED", true, log) {
		if v, err := gcp.NewVision(ctx, log); err != nil {
			log.Warn("Vision unavailable; image OCR disabled", "error", err)
		} else {
			out.GcpVision = v
		}
	}

	b, err := bus.New(log, bus.LoadRedisConfig(log))
	if err != nil {
		return Clients{}, fmt.Errorf("init progress bus: %w", err)
	}
	out.Bus = b

	out.TemporalCfg = temporalx.LoadConfig(log)
	tc, err := temporalx.NewClient(log, out.TemporalCfg)
	if err != nil {
		_ = b.Close()
		return Clients{}, fmt.Errorf("init temporal client: %w", err)
	}
	out.Temporal = tc
	return out, nil
}

func (c Clients) Close() {
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
	if c.GcsReader != nil {
		_ = c.GcsReader.Close()
	}
	if c.GcpDocument != nil {
		_ = c.GcpDocument.Close()
	}
	if c.GcpVision != nil {
		_ = c.GcpVision.Close()
	}
}

package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/coursegen-backend/internal/jobs/orchestrator"
	"github.com/yungbote/coursegen-backend/internal/jobs/worker"
	"github.com/yungbote/coursegen-backend/internal/modules/coursegen/budget"
	"github.com/yungbote/coursegen-backend/internal/modules/coursegen/quality"
	"github.com/yungbote/coursegen-backend/internal/modules/coursegen/steps"
	"github.com/yungbote/coursegen-backend/internal/platform/envutil"
	"github.com/yungbote/coursegen-backend/internal/platform/logger"
)

type Config struct {
	Port        string
	Environment string
	CORSOrigins []string

	Orchestrator orchestrator.Config
	Worker       worker.Config
	LeaseFor     time.Duration
	Tiers        budget.Tiers

	QualityThreshold   float64
	SummaryRetries     int
	QualityConcurrency int
	ContentConcurrency int
	Debug              bool
}

// PolicyFile is the optional YAML document named by COURSEGEN_POLICY_FILE.
type PolicyFile struct {
	Tiers    budget.Tiers `yaml:"tiers"`
	Approval *struct {
		Enabled *bool `yaml:"enabled"`
		Stages  []int `yaml:"stages"`
	} `yaml:"approval"`
	Quality *struct {
		Threshold      float64 `yaml:"threshold"`
		SummaryRetries int     `yaml:"summary_retries"`
	} `yaml:"quality"`
}

func LoadPolicyFile(path string) (*PolicyFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	var pf PolicyFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return nil, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	return &pf, nil
}

// LoadConfig reads the environment, then lets the policy file override tiers,
// approval gates and quality settings. Environment approval settings win over the file.
func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := Config{
		Port:        envutil.String("PORT", "8080", log),
		Environment: envutil.String("APP_ENV", "development", log),
		CORSOrigins: splitList(envutil.String("CORS_ALLOWED_ORIGINS", "", log)),
		LeaseFor:    envutil.Duration("JOB_LEASE_DURATION", 5*time.Minute, log),
		Tiers:       budget.DefaultTiers(),

		QualityThreshold:   envutil.Float("QUALITY_THRESHOLD", quality.DefaultThreshold, log),
		SummaryRetries:     envutil.Int("SUMMARY_MAX_RETRIES", 2, log),
		QualityConcurrency: envutil.Int("QUALITY_CONCURRENCY", 4, log),
		ContentConcurrency: envutil.Int("CONTENT_CONCURRENCY", steps.DefaultContentConcurrency, log),
		Debug:              envutil.Bool("COURSEGEN_DEBUG", false, log),
	}

	wd := worker.DefaultConfig()
	cfg.Worker = worker.Config{
		Concurrency:   envutil.Int("WORKER_CONCURRENCY", wd.Concurrency, log),
		PollInterval:  envutil.Duration("WORKER_POLL_INTERVAL", wd.PollInterval, log),
		StallAfter:    envutil.Duration("WORKER_STALL_AFTER", wd.StallAfter, log),
		SweepInterval: envutil.Duration("WORKER_SWEEP_INTERVAL", wd.SweepInterval, log),
		SweepLimit:    envutil.Int("WORKER_SWEEP_LIMIT", wd.SweepLimit, log),
	}

	od := orchestrator.DefaultConfig()
	cfg.Orchestrator = orchestrator.Config{
		ChunkDefaults: orchestrator.ChunkDefaults{
			Size:    envutil.Int("CHUNK_SIZE", od.ChunkDefaults.Size, log),
			Overlap: envutil.Int("CHUNK_OVERLAP", od.ChunkDefaults.Overlap, log),
		},
		HeartbeatInterval: envutil.Duration("JOB_HEARTBEAT_INTERVAL", od.HeartbeatInterval, log),
	}

	approvalEnabled := true
	approvalStages := od.Approval.Stages()

	if path := envutil.String("COURSEGEN_POLICY_FILE", "", log); path != "" {
		pf, err := LoadPolicyFile(path)
		if err != nil {
			return Config{}, err
		}
		if len(pf.Tiers) > 0 {
			cfg.Tiers = pf.Tiers
		}
		if pf.Approval != nil {
			if pf.Approval.Enabled != nil {
				approvalEnabled = *pf.Approval.Enabled
			}
			if pf.Approval.Stages != nil {
				approvalStages = pf.Approval.Stages
			}
		}
		if pf.Quality != nil {
			if pf.Quality.Threshold > 0 {
				cfg.QualityThreshold = pf.Quality.Threshold
			}
			if pf.Quality.SummaryRetries > 0 {
				cfg.SummaryRetries = pf.Quality.SummaryRetries
			}
		}
	}

	approvalEnabled = envutil.Bool("APPROVAL_GATES_ENABLED", approvalEnabled, log)
	approvalStages = envutil.IntList("APPROVAL_STAGES", approvalStages, log)
	policy, err := orchestrator.NewApprovalPolicy(approvalEnabled, approvalStages)
	if err != nil {
		return Config{}, fmt.Errorf("approval policy: %w", err)
	}
	cfg.Orchestrator.Approval = policy

	tiers, err := cfg.Tiers.Validate()
	if err != nil {
		return Config{}, fmt.Errorf("model tiers: %w", err)
	}
	cfg.Tiers = tiers

	if cfg.QualityThreshold <= 0 || cfg.QualityThreshold > 1 {
		return Config{}, fmt.Errorf("QUALITY_THRESHOLD must be in (0, 1], got %v", cfg.QualityThreshold)
	}
	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

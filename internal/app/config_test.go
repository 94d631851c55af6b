package app

import (
	"os"
	"path/filepath"
	"testing"

	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/platform/logger"
)

func writePolicy(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(logger.Nop())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	for _, s := range []types.Stage{2, 3, 4, 5} {
		if !cfg.Orchestrator.Approval.RequiresApproval(s) {
			t.Fatalf("stage %d must be gated by default", s)
		}
	}
	if cfg.Orchestrator.Approval.RequiresApproval(1) || len(cfg.Tiers) == 0 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadConfigPolicyFile(t *testing.T) {
	path := writePolicy(t, `
tiers:
  - name: large
    model: big-model
    context_window: 500000
    high_budget: 200000
  - name: small
    model: small-model
    context_window: 100000
    high_budget: 50000
approval:
  stages: [4]
quality:
  threshold: 0.8
`)
	t.Setenv("COURSEGEN_POLICY_FILE", path)

	cfg, err := LoadConfig(logger.Nop())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(cfg.Tiers) != 2 || cfg.Tiers[0].Name != "small" {
		t.Fatalf("tiers must be sorted by context window: %+v", cfg.Tiers)
	}
	if !cfg.Orchestrator.Approval.RequiresApproval(4) || cfg.Orchestrator.Approval.RequiresApproval(2) {
		t.Fatalf("policy file approval stages not applied")
	}
	if cfg.QualityThreshold != 0.8 {
		t.Fatalf("threshold: %v", cfg.QualityThreshold)
	}

	t.Setenv("APPROVAL_GATES_ENABLED", "false")
	cfg, err = LoadConfig(logger.Nop())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Orchestrator.Approval.RequiresApproval(4) {
		t.Fatalf("environment must be able to disable gates")
	}
}

func TestLoadConfigRejectsBadPolicy(t *testing.T) {
	t.Setenv("APPROVAL_STAGES", "6")
	if _, err := LoadConfig(logger.Nop()); err == nil {
		t.Fatalf("gating the last stage must be rejected")
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" https://a.example, ,https://b.example ")
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("splitList: %v", got)
	}
	if splitList("") != nil {
		t.Fatalf("empty input must yield nil")
	}
}

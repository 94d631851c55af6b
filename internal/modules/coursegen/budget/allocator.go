package budget

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/observability"
	"github.com/yungbote/coursegen-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursegen-backend/internal/platform/logger"
)

type DocumentSource interface {
	ListByCourse(dbc dbctx.Context, courseID uuid.UUID) ([]*types.CourseDocument, error)
}

type AllocationStore interface {
	Get(dbc dbctx.Context, courseID uuid.UUID) (*types.BudgetAllocation, error)
	Upsert(dbc dbctx.Context, a *types.BudgetAllocation) error
}

type Allocator struct {
	log         *logger.Logger
	documents   DocumentSource
	allocations AllocationStore
	tiers       Tiers
	metrics     *observability.Metrics
	now         func() time.Time
}

func NewAllocator(log *logger.Logger, documents DocumentSource, allocations AllocationStore, tiers Tiers, metrics *observability.Metrics) (*Allocator, error) {
	if log == nil || documents == nil || allocations == nil {
		return nil, fmt.Errorf("budget: allocator missing deps")
	}
	valid, err := tiers.Validate()
	if err != nil {
		return nil, err
	}
	return &Allocator{
		log:         log.With("component", "BudgetAllocator"),
		documents:   documents,
		allocations: allocations,
		tiers:       valid,
		metrics:     metrics,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

func (a *Allocator) Tiers() Tiers { return a.tiers }

// Calculate sums token counts per priority class, picks the tier and pool sizes
// and persists the result. Documents without a priority or token count are ignored;
// with none left the default allocation is stored.
func (a *Allocator) Calculate(ctx context.Context, courseID uuid.UUID) (*types.BudgetAllocation, error) {
	dbc := dbctx.New(ctx)
	docs, err := a.documents.ListByCourse(dbc, courseID)
	if err != nil {
		return nil, fmt.Errorf("budget: load documents: %w", err)
	}
	alloc := a.compute(courseID, docs)
	if err := a.allocations.Upsert(dbc, alloc); err != nil {
		return nil, fmt.Errorf("budget: persist allocation: %w", err)
	}
	a.metrics.ObserveTier(alloc.Tier)
	a.log.Info("Budget allocated",
		"course_id", courseID,
		"tier", alloc.Tier,
		"model", alloc.Model,
		"total_high", alloc.TotalHigh,
		"total_low", alloc.TotalLow,
		"high_budget", alloc.HighBudget,
		"low_budget", alloc.LowBudget,
	)
	return alloc, nil
}

// Ensure returns the stored allocation while the document set is unchanged and
// recalculates otherwise.
func (a *Allocator) Ensure(ctx context.Context, courseID uuid.UUID) (*types.BudgetAllocation, error) {
	dbc := dbctx.New(ctx)
	existing, err := a.allocations.Get(dbc, courseID)
	if err != nil {
		return nil, fmt.Errorf("budget: load allocation: %w", err)
	}
	if existing == nil {
		return a.Calculate(ctx, courseID)
	}
	docs, err := a.documents.ListByCourse(dbc, courseID)
	if err != nil {
		return nil, fmt.Errorf("budget: load documents: %w", err)
	}
	if existing.Fingerprint == Fingerprint(docs) {
		return existing, nil
	}
	a.log.Info("Document set changed, recalculating budget", "course_id", courseID)
	return a.Calculate(ctx, courseID)
}

func (a *Allocator) DefaultAllocation(courseID uuid.UUID) *types.BudgetAllocation {
	smallest := a.tiers[0]
	return &types.BudgetAllocation{
		CourseID:   courseID,
		Tier:       smallest.Name,
		Model:      smallest.Model,
		HighBudget: smallest.HighBudget,
		LowBudget:  MinLowBudget,
		ComputedAt: a.now(),
	}
}

func (a *Allocator) compute(courseID uuid.UUID, docs []*types.CourseDocument) *types.BudgetAllocation {
	var totalHigh, totalLow, classified int
	for _, d := range docs {
		if !d.Classified() {
			continue
		}
		classified++
		switch d.Priority {
		case types.PriorityHigh:
			totalHigh += d.TokenCount
		case types.PriorityLow:
			totalLow += d.TokenCount
		}
	}
	if classified == 0 {
		alloc := a.DefaultAllocation(courseID)
		alloc.Fingerprint = Fingerprint(docs)
		return alloc
	}
	tier := a.tiers.Select(totalHigh)
	return &types.BudgetAllocation{
		CourseID:    courseID,
		TotalHigh:   totalHigh,
		TotalLow:    totalLow,
		Tier:        tier.Name,
		Model:       tier.Model,
		HighBudget:  tier.HighBudget,
		LowBudget:   LowBudget(totalLow, tier),
		Fingerprint: Fingerprint(docs),
		ComputedAt:  a.now(),
	}
}

// DocumentBudgetFor decides how much of a document goes to the model: the whole
// text when it fits its class pool, a summary capped at the pool otherwise.
func DocumentBudgetFor(alloc *types.BudgetAllocation, priority types.PriorityClass, tokens int) types.DocumentBudget {
	pool := alloc.LowBudget
	if priority == types.PriorityHigh {
		pool = alloc.HighBudget
	}
	if tokens <= pool {
		return types.DocumentBudget{Budget: tokens, Mode: types.BudgetModeFullText}
	}
	return types.DocumentBudget{Budget: pool, Mode: types.BudgetModeSummary}
}

// Fingerprint identifies the classified document set so a stale allocation can be detected.
func Fingerprint(docs []*types.CourseDocument) string {
	lines := make([]string, 0, len(docs))
	for _, d := range docs {
		lines = append(lines, fmt.Sprintf("%s:%s:%d", d.ID, d.Priority, d.TokenCount))
	}
	sort.Strings(lines)
	sum := blake2b.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:16])
}

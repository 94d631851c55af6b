package budget

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursegen-backend/internal/platform/logger"
)

type fakeDocs struct {
	docs []*types.CourseDocument
	err  error
}

func (f *fakeDocs) ListByCourse(dbc dbctx.Context, courseID uuid.UUID) ([]*types.CourseDocument, error) {
	return f.docs, f.err
}

type fakeAllocations struct {
	stored  map[uuid.UUID]*types.BudgetAllocation
	upserts int
	err     error
}

func (f *fakeAllocations) Get(dbc dbctx.Context, courseID uuid.UUID) (*types.BudgetAllocation, error) {
	return f.stored[courseID], nil
}

func (f *fakeAllocations) Upsert(dbc dbctx.Context, a *types.BudgetAllocation) error {
	if f.err != nil {
		return f.err
	}
	if f.stored == nil {
		f.stored = map[uuid.UUID]*types.BudgetAllocation{}
	}
	f.upserts++
	cp := *a
	f.stored[a.CourseID] = &cp
	return nil
}

func doc(p types.PriorityClass, tokens int) *types.CourseDocument {
	return &types.CourseDocument{ID: uuid.New(), Priority: p, TokenCount: tokens, Status: types.DocumentProcessed}
}

func newAllocator(t *testing.T, docs *fakeDocs, store *fakeAllocations) *Allocator {
	t.Helper()
	a, err := NewAllocator(logger.Nop(), docs, store, DefaultTiers(), nil)
	if err != nil {
		t.Fatalf("NewAllocator: %v", err)
	}
	return a
}

func TestCalculateNoDocumentsReturnsDefault(t *testing.T) {
	store := &fakeAllocations{}
	a := newAllocator(t, &fakeDocs{}, store)
	courseID := uuid.New()

	alloc, err := a.Calculate(context.Background(), courseID)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if alloc.HighBudget != 80_000 || alloc.LowBudget != MinLowBudget || alloc.TotalHigh != 0 || alloc.TotalLow != 0 {
		t.Fatalf("unexpected default allocation: %+v", alloc)
	}
	if alloc.Tier != "standard" {
		t.Fatalf("expected smallest tier, got %s", alloc.Tier)
	}
	if store.stored[courseID] == nil {
		t.Fatalf("default allocation was not persisted")
	}
}

func TestCalculateIgnoresUnclassifiedDocuments(t *testing.T) {
	docs := &fakeDocs{docs: []*types.CourseDocument{
		{ID: uuid.New(), TokenCount: 900_000},
		doc(types.PriorityHigh, 0),
	}}
	alloc, err := newAllocator(t, docs, &fakeAllocations{}).Calculate(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if alloc.Tier != "standard" || alloc.TotalHigh != 0 {
		t.Fatalf("unclassified documents should fall back to default: %+v", alloc)
	}
}

func TestCalculateTierBoundaryIsInclusive(t *testing.T) {
	cases := []struct {
		name      string
		totalHigh int
		wantTier  string
	}{
		{"below", 79_999, "standard"},
		{"exact", 80_000, "standard"},
		{"above", 80_001, "extended"},
		{"beyond largest", 2_000_000, "extended"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			docs := &fakeDocs{docs: []*types.CourseDocument{doc(types.PriorityHigh, tc.totalHigh)}}
			alloc, err := newAllocator(t, docs, &fakeAllocations{}).Calculate(context.Background(), uuid.New())
			if err != nil {
				t.Fatalf("Calculate: %v", err)
			}
			if alloc.Tier != tc.wantTier {
				t.Fatalf("total=%d tier=%s want=%s", tc.totalHigh, alloc.Tier, tc.wantTier)
			}
		})
	}
}

func TestLowBudgetRules(t *testing.T) {
	standard := DefaultTiers()[0]
	cases := []struct {
		totalLow int
		want     int
	}{
		{0, MinLowBudget},
		{MinLowBudget, MinLowBudget},
		{MinLowBudget + 1, DefaultLowBudget},
		{DefaultLowBudget, DefaultLowBudget},
		{30_000, 30_000},
		{500_000, standard.LowCap()},
	}
	for _, tc := range cases {
		if got := LowBudget(tc.totalLow, standard); got != tc.want {
			t.Fatalf("LowBudget(%d)=%d want=%d", tc.totalLow, got, tc.want)
		}
	}
}

func TestCalculateSurfacesStorageErrors(t *testing.T) {
	boom := errors.New("db down")
	if _, err := newAllocator(t, &fakeDocs{err: boom}, &fakeAllocations{}).Calculate(context.Background(), uuid.New()); !errors.Is(err, boom) {
		t.Fatalf("expected read error to surface, got %v", err)
	}
	if _, err := newAllocator(t, &fakeDocs{}, &fakeAllocations{err: boom}).Calculate(context.Background(), uuid.New()); !errors.Is(err, boom) {
		t.Fatalf("expected write error to surface, got %v", err)
	}
}

func TestEnsureReusesUntilDocumentSetChanges(t *testing.T) {
	docs := &fakeDocs{docs: []*types.CourseDocument{doc(types.PriorityHigh, 1_000)}}
	store := &fakeAllocations{}
	a := newAllocator(t, docs, store)
	courseID := uuid.New()

	if _, err := a.Ensure(context.Background(), courseID); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if _, err := a.Ensure(context.Background(), courseID); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if store.upserts != 1 {
		t.Fatalf("expected a single calculation, got %d", store.upserts)
	}

	docs.docs = append(docs.docs, doc(types.PriorityLow, 5_000))
	if _, err := a.Ensure(context.Background(), courseID); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if store.upserts != 2 {
		t.Fatalf("expected recalculation after document added, got %d", store.upserts)
	}
}

func TestDocumentBudgetFor(t *testing.T) {
	alloc := &types.BudgetAllocation{HighBudget: 80_000, LowBudget: 20_000}
	cases := []struct {
		priority types.PriorityClass
		tokens   int
		want     types.DocumentBudget
	}{
		{types.PriorityHigh, 50_000, types.DocumentBudget{Budget: 50_000, Mode: types.BudgetModeFullText}},
		{types.PriorityHigh, 80_000, types.DocumentBudget{Budget: 80_000, Mode: types.BudgetModeFullText}},
		{types.PriorityHigh, 90_000, types.DocumentBudget{Budget: 80_000, Mode: types.BudgetModeSummary}},
		{types.PriorityLow, 30_000, types.DocumentBudget{Budget: 20_000, Mode: types.BudgetModeSummary}},
	}
	for _, tc := range cases {
		if got := DocumentBudgetFor(alloc, tc.priority, tc.tokens); got != tc.want {
			t.Fatalf("DocumentBudgetFor(%s, %d)=%+v want=%+v", tc.priority, tc.tokens, got, tc.want)
		}
	}
}

func TestTiersValidate(t *testing.T) {
	bad := Tiers{
		{Name: "a", Model: "m1", ContextWindow: 128_000, HighBudget: 80_000},
		{Name: "b", Model: "m2", ContextWindow: 200_000, HighBudget: 70_000},
	}
	if _, err := bad.Validate(); err == nil {
		t.Fatalf("expected non-monotonic HIGH budgets to be rejected")
	}
	reversed := Tiers{DefaultTiers()[1], DefaultTiers()[0]}
	sorted, err := reversed.Validate()
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if sorted[0].Name != "standard" {
		t.Fatalf("tiers not sorted by window: %+v", sorted)
	}
}

func TestSelectIsMonotonicInHighTotal(t *testing.T) {
	tiers, err := Tiers{
		{Name: "extended", Model: "m3", ContextWindow: 1_000_000, HighBudget: 400_000},
		{Name: "small", Model: "m1", ContextWindow: 100_000, HighBudget: 50_000},
		{Name: "standard", Model: "m2", ContextWindow: 128_000, HighBudget: 80_000},
	}.Validate()
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	rank := map[string]int{}
	for i, tier := range tiers {
		rank[tier.Name] = i
	}
	prev := -1
	for total := 0; total <= 1_200_000; total += 2_500 {
		got := rank[tiers.Select(total).Name]
		if got < prev {
			t.Fatalf("tier went down at total=%d: rank %d after %d", total, got, prev)
		}
		prev = got
	}
	if prev != len(tiers)-1 {
		t.Fatalf("largest total must select the largest tier, got rank %d", prev)
	}
}

func TestDocumentBudgetForIsIdempotent(t *testing.T) {
	alloc := &types.BudgetAllocation{HighBudget: 80_000, LowBudget: 20_000}
	first := DocumentBudgetFor(alloc, types.PriorityHigh, 15_000)
	if want := (types.DocumentBudget{Budget: 15_000, Mode: types.BudgetModeFullText}); first != want {
		t.Fatalf("got %+v want %+v", first, want)
	}
	for _, tc := range []struct {
		priority types.PriorityClass
		tokens   int
	}{
		{types.PriorityHigh, 15_000},
		{types.PriorityHigh, 120_000},
		{types.PriorityLow, 5_000},
		{types.PriorityLow, 45_000},
	} {
		a := DocumentBudgetFor(alloc, tc.priority, tc.tokens)
		b := DocumentBudgetFor(alloc, tc.priority, tc.tokens)
		if a != b {
			t.Fatalf("DocumentBudgetFor(%s, %d) not stable: %+v vs %+v", tc.priority, tc.tokens, a, b)
		}
		if again := DocumentBudgetFor(alloc, tc.priority, a.Budget); again.Budget != a.Budget || again.Mode != types.BudgetModeFullText {
			t.Fatalf("re-budgeting the budgeted size must keep it: %+v -> %+v", a, again)
		}
	}
}

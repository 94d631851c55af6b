package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/coursegen-backend/internal/data/repos/testutil"
	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/pkg/dbctx"
)

func newJob(courseID uuid.UUID, stage types.Stage, key string, createdAt time.Time) *types.GenerationJob {
	return &types.GenerationJob{
		ID:             uuid.New(),
		JobType:        stage.JobType(),
		Stage:          stage,
		OrganizationID: uuid.New(),
		CourseID:       courseID,
		UserID:         uuid.New(),
		IdempotencyKey: key,
		CreatedAt:      createdAt,
	}
}

func TestGenerationJobRepoClaimAndAck(t *testing.T) {
	db := testutil.DB(t)
	repo := NewGenerationJobRepo(db, testutil.Logger(t))
	dbc := dbctx.New(context.Background())

	now := time.Now().UTC()
	older := newJob(uuid.New(), types.StageInitialize, "k-older", now.Add(-time.Hour))
	newer := newJob(uuid.New(), types.StageInitialize, "k-newer", now)
	for _, j := range []*types.GenerationJob{newer, older} {
		if err := repo.Create(dbc, j); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	claimed, err := repo.ClaimNext(dbc, time.Minute)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if claimed == nil || claimed.ID != older.ID {
		t.Fatalf("expected oldest job claimed, got %+v", claimed)
	}
	if claimed.Status != types.QueueStatusLeased || claimed.LeaseToken == nil || claimed.Attempts != 1 {
		t.Fatalf("unexpected lease bookkeeping: %+v", claimed)
	}

	if ok, err := repo.ExtendLease(dbc, claimed.ID, uuid.New(), time.Minute); err != nil || ok {
		t.Fatalf("ExtendLease with wrong token: ok=%v err=%v", ok, err)
	}
	if ok, err := repo.ExtendLease(dbc, claimed.ID, *claimed.LeaseToken, time.Minute); err != nil || !ok {
		t.Fatalf("ExtendLease: ok=%v err=%v", ok, err)
	}

	second, err := repo.ClaimNext(dbc, time.Minute)
	if err != nil || second == nil || second.ID != newer.ID {
		t.Fatalf("expected second job, got %+v err=%v", second, err)
	}
	if none, err := repo.ClaimNext(dbc, time.Minute); err != nil || none != nil {
		t.Fatalf("expected empty queue, got %+v err=%v", none, err)
	}

	if ok, err := repo.DeleteLeased(dbc, claimed.ID, *claimed.LeaseToken); err != nil || !ok {
		t.Fatalf("DeleteLeased: ok=%v err=%v", ok, err)
	}
	if got, _ := repo.GetByID(dbc, claimed.ID); got != nil {
		t.Fatalf("acked job should be gone")
	}

	if ok, err := repo.MarkDead(dbc, second.ID, *second.LeaseToken, "boom"); err != nil || !ok {
		t.Fatalf("MarkDead: ok=%v err=%v", ok, err)
	}
	dead, _ := repo.GetByID(dbc, second.ID)
	if dead == nil || dead.Status != types.QueueStatusDead || dead.DeadReason != "boom" {
		t.Fatalf("expected dead job, got %+v", dead)
	}
}

func TestGenerationJobRepoReclaimsExpiredLease(t *testing.T) {
	db := testutil.DB(t)
	repo := NewGenerationJobRepo(db, testutil.Logger(t))
	dbc := dbctx.New(context.Background())

	job := newJob(uuid.New(), types.StageContentGeneration, "k-expired", time.Now().UTC())
	if err := repo.Create(dbc, job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	first, err := repo.ClaimNext(dbc, -time.Second)
	if err != nil || first == nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	again, err := repo.ClaimByID(dbc, job.ID, time.Minute)
	if err != nil || again == nil {
		t.Fatalf("expected expired lease to be reclaimable, got %+v err=%v", again, err)
	}
	if *again.LeaseToken == *first.LeaseToken || again.Attempts != 2 {
		t.Fatalf("expected a fresh lease, got %+v", again)
	}
	if ok, _ := repo.DeleteLeased(dbc, job.ID, *first.LeaseToken); ok {
		t.Fatalf("stale token must not ack")
	}
	if none, err := repo.ClaimByID(dbc, job.ID, time.Minute); err != nil || none != nil {
		t.Fatalf("live lease must not be claimable, got %+v err=%v", none, err)
	}
}

func TestGenerationJobRepoInFlightUniqueness(t *testing.T) {
	db := testutil.DB(t)
	repo := NewGenerationJobRepo(db, testutil.Logger(t))
	dbc := dbctx.New(context.Background())

	courseID := uuid.New()
	if err := repo.Create(dbc, newJob(courseID, types.StageStructureAnalysis, "k-1", time.Now().UTC())); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err := repo.Create(dbc, newJob(courseID, types.StageStructureAnalysis, "k-2", time.Now().UTC()))
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Fatalf("expected duplicate key for second in-flight job, got %v", err)
	}
	if found, err := repo.FindInFlight(dbc, courseID, types.StageStructureAnalysis); err != nil || found == nil {
		t.Fatalf("FindInFlight: %+v err=%v", found, err)
	}
	if byKey, _ := repo.GetByIdempotencyKey(dbc, "k-1"); byKey == nil {
		t.Fatalf("GetByIdempotencyKey: not found")
	}

	n, err := repo.DeleteQueuedForCourse(dbc, courseID)
	if err != nil || n != 1 {
		t.Fatalf("DeleteQueuedForCourse: n=%d err=%v", n, err)
	}
	if err := repo.Create(dbc, newJob(courseID, types.StageStructureAnalysis, "k-3", time.Now().UTC())); err != nil {
		t.Fatalf("Create after cancel: %v", err)
	}
}

package bus

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/coursegen-backend/internal/platform/logger"
	"github.com/yungbote/coursegen-backend/internal/realtime"
)

func TestLocalBusForwards(t *testing.T) {
	b, err := New(logger.Nop(), RedisConfig{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var got []realtime.ProgressEvent
	if err := b.StartForwarder(context.Background(), func(ev realtime.ProgressEvent) { got = append(got, ev) }); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}
	ev := realtime.ProgressEvent{CourseID: uuid.New(), Status: "analyzing_task", Stage: 3, Percentage: 33}
	if err := b.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(got) != 1 || got[0].CourseID != ev.CourseID || got[0].Stage != 3 {
		t.Fatalf("unexpected forwarded events: %+v", got)
	}
	if err := b.StartForwarder(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil callback")
	}
}

func TestNewRedisBusRequiresAddr(t *testing.T) {
	if _, err := NewRedisBus(logger.Nop(), RedisConfig{}); err == nil {
		t.Fatalf("expected error without address")
	}
}

package realtime

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/coursegen-backend/internal/platform/logger"
)

func recvEvent(t *testing.T, ch <-chan ProgressEvent, timeout time.Duration) ProgressEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for progress event")
	}
	return ProgressEvent{}
}

func TestHubOrderingAndReconnect(t *testing.T) {
	hub := NewHub(logger.Nop())
	courseID := uuid.New()

	clientA := hub.NewClient()
	hub.AddChannel(clientA, courseID.String())

	hub.Broadcast(ProgressEvent{CourseID: courseID, Status: "initializing", Percentage: 0})
	hub.Broadcast(ProgressEvent{CourseID: courseID, Status: "processing_documents", Percentage: 16})
	hub.Broadcast(ProgressEvent{CourseID: uuid.New(), Status: "completed"})

	if got := recvEvent(t, clientA.Outbound, time.Second); got.Status != "initializing" {
		t.Fatalf("first event: got %s", got.Status)
	}
	if got := recvEvent(t, clientA.Outbound, time.Second); got.Status != "processing_documents" {
		t.Fatalf("second event: got %s", got.Status)
	}
	select {
	case ev := <-clientA.Outbound:
		t.Fatalf("unexpected event from another course: %+v", ev)
	default:
	}

	hub.CloseClient(clientA)
	hub.CloseClient(clientA)
	if _, ok := <-clientA.Outbound; ok {
		t.Fatalf("outbound should be closed after CloseClient")
	}
	if n := hub.Subscribers(courseID.String()); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}

	clientB := hub.NewClient()
	hub.AddChannel(clientB, courseID.String())
	hub.Broadcast(ProgressEvent{CourseID: courseID, Status: "completed", Percentage: 100})
	if got := recvEvent(t, clientB.Outbound, time.Second); got.Percentage != 100 {
		t.Fatalf("reconnect event: got %+v", got)
	}
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(logger.Nop())
	courseID := uuid.New()
	client := hub.NewClient()
	hub.AddChannel(client, courseID.String())

	for i := 0; i < cap(client.Outbound)+5; i++ {
		hub.Broadcast(ProgressEvent{CourseID: courseID, Percentage: i})
	}
	if len(client.Outbound) != cap(client.Outbound) {
		t.Fatalf("expected a full buffer, got %d", len(client.Outbound))
	}
}

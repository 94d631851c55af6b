package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/platform/logger"
	"github.com/yungbote/coursegen-backend/internal/realtime"
)

type StateLookup interface {
	State(ctx context.Context, courseID uuid.UUID) (*types.CourseGenerationState, error)
}

type RealtimeHandler struct {
	Log    *logger.Logger
	Hub    *realtime.Hub
	States StateLookup
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.Hub, states StateLookup) *RealtimeHandler {
	return &RealtimeHandler{
		Log:    log.With("handler", "RealtimeHandler"),
		Hub:    hub,
		States: states,
	}
}

// GET /api/courses/:courseId/events
func (h *RealtimeHandler) Stream(c *gin.Context) {
	courseID, err := courseIDParam(c)
	if err != nil {
		respondErr(c, err)
		return
	}
	var snapshot *realtime.ProgressEvent
	if h.States != nil {
		st, err := h.States.State(c.Request.Context(), courseID)
		if err != nil {
			respondErr(c, err)
			return
		}
		snapshot = snapshotEvent(st)
	}

	client := h.Hub.NewClient()
	h.Hub.AddChannel(client, courseID.String())
	defer h.Hub.CloseClient(client)
	if snapshot != nil {
		// late subscribers start from the stored state
		client.Outbound <- *snapshot
	}
	h.Log.Debug("Progress stream open", "course_id", courseID, "client_id", client.ID)
	h.Hub.ServeHTTP(c.Writer, c.Request, client)
	h.Log.Debug("Progress stream closed", "course_id", courseID, "client_id", client.ID)
}

func snapshotEvent(st *types.CourseGenerationState) *realtime.ProgressEvent {
	if st == nil {
		return nil
	}
	p := st.DecodeProgress()
	ev := &realtime.ProgressEvent{
		CourseID:   st.CourseID,
		Status:     st.Status.String(),
		Stage:      int(st.CurrentStage),
		Percentage: p.Percentage,
		Message:    p.Message,
		At:         st.UpdatedAt,
	}
	if st.ErrorMessage != nil {
		ev.Error = *st.ErrorMessage
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	return ev
}

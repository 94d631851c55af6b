package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/http/response"
	"github.com/yungbote/coursegen-backend/internal/jobs/orchestrator"
	"github.com/yungbote/coursegen-backend/internal/platform/apierr"
)

// GenerationService is the slice of the orchestrator the HTTP layer drives.
type GenerationService interface {
	StartGeneration(ctx context.Context, req orchestrator.StartRequest) (uuid.UUID, error)
	SubmitIdempotent(ctx context.Context, courseID uuid.UUID, jobType types.JobType, payload json.RawMessage, key string) (uuid.UUID, error)
	Approve(ctx context.Context, courseID uuid.UUID, stage types.Stage) (uuid.UUID, error)
	CancelGeneration(ctx context.Context, courseID uuid.UUID) error
	Restart(ctx context.Context, courseID uuid.UUID, fromStage types.Stage) (uuid.UUID, error)
	State(ctx context.Context, courseID uuid.UUID) (*types.CourseGenerationState, error)
}

type GenerationHandler struct {
	svc GenerationService
}

func NewGenerationHandler(svc GenerationService) *GenerationHandler {
	return &GenerationHandler{svc: svc}
}

type startDocument struct {
	FileName string `json:"fileName"`
	FilePath string `json:"filePath"`
	MimeType string `json:"mimeType"`
	Priority string `json:"priority"`
}

type startRequest struct {
	OrganizationID uuid.UUID       `json:"organizationId"`
	UserID         uuid.UUID       `json:"userId"`
	Settings       map[string]any  `json:"settings"`
	Documents      []startDocument `json:"documents"`
}

// POST /api/courses/:courseId/generation
func (h *GenerationHandler) Start(c *gin.Context) {
	courseID, err := courseIDParam(c)
	if err != nil {
		respondErr(c, err)
		return
	}
	var req startRequest
	if err := bindJSON(c, &req); err != nil {
		respondErr(c, err)
		return
	}
	docs := make([]orchestrator.NewDocument, 0, len(req.Documents))
	for i, d := range req.Documents {
		var prio types.PriorityClass
		if strings.TrimSpace(d.Priority) != "" {
			p, err := types.ParsePriorityClass(d.Priority)
			if err != nil {
				respondErr(c, apierr.BadRequest("validation_error", fmt.Errorf("documents[%d]: %w", i, err)))
				return
			}
			prio = p
		}
		docs = append(docs, orchestrator.NewDocument{
			FileName: d.FileName,
			FilePath: d.FilePath,
			MimeType: d.MimeType,
			Priority: prio,
		})
	}
	jobID, err := h.svc.StartGeneration(c.Request.Context(), orchestrator.StartRequest{
		OrganizationID: req.OrganizationID,
		CourseID:       courseID,
		UserID:         req.UserID,
		Settings:       req.Settings,
		Documents:      docs,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{"jobId": jobID})
}

type submitRequest struct {
	JobType string          `json:"jobType"`
	Payload json.RawMessage `json:"payload"`
}

// POST /api/courses/:courseId/jobs
func (h *GenerationHandler) Submit(c *gin.Context) {
	courseID, err := courseIDParam(c)
	if err != nil {
		respondErr(c, err)
		return
	}
	var req submitRequest
	if err := bindJSON(c, &req); err != nil {
		respondErr(c, err)
		return
	}
	jt, err := types.ParseJobType(req.JobType)
	if err != nil {
		respondErr(c, &orchestrator.ValidationError{Fields: []string{"jobType"}, Err: err})
		return
	}
	key := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	jobID, err := h.svc.SubmitIdempotent(c.Request.Context(), courseID, jt, req.Payload, key)
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{"jobId": jobID})
}

type approveRequest struct {
	StageNumber int `json:"stageNumber"`
}

// POST /api/courses/:courseId/approve
func (h *GenerationHandler) Approve(c *gin.Context) {
	courseID, err := courseIDParam(c)
	if err != nil {
		respondErr(c, err)
		return
	}
	var req approveRequest
	if err := bindJSON(c, &req); err != nil {
		respondErr(c, err)
		return
	}
	stage := types.Stage(req.StageNumber)
	if !stage.Valid() {
		respondErr(c, apierr.BadRequest("validation_error", fmt.Errorf("stageNumber %d out of range", req.StageNumber)))
		return
	}
	jobID, err := h.svc.Approve(c.Request.Context(), courseID, stage)
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondOK(c, jobResponse(courseID, jobID))
}

// POST /api/courses/:courseId/cancel
func (h *GenerationHandler) Cancel(c *gin.Context) {
	courseID, err := courseIDParam(c)
	if err != nil {
		respondErr(c, err)
		return
	}
	if err := h.svc.CancelGeneration(c.Request.Context(), courseID); err != nil {
		respondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"courseId": courseID, "status": types.Cancelled})
}

type restartRequest struct {
	// FromStage zero (or omitted) restarts the stage that failed.
	FromStage int `json:"fromStage"`
}

// POST /api/courses/:courseId/restart
func (h *GenerationHandler) Restart(c *gin.Context) {
	courseID, err := courseIDParam(c)
	if err != nil {
		respondErr(c, err)
		return
	}
	var req restartRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		respondErr(c, err)
		return
	}
	stage := types.Stage(req.FromStage)
	if stage != types.StageNone && !stage.Valid() {
		respondErr(c, apierr.BadRequest("validation_error", fmt.Errorf("fromStage %d out of range", req.FromStage)))
		return
	}
	jobID, err := h.svc.Restart(c.Request.Context(), courseID, stage)
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondAccepted(c, jobResponse(courseID, jobID))
}

// GET /api/courses/:courseId/generation
func (h *GenerationHandler) GetState(c *gin.Context) {
	courseID, err := courseIDParam(c)
	if err != nil {
		respondErr(c, err)
		return
	}
	st, err := h.svc.State(c.Request.Context(), courseID)
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"state":    st,
		"progress": st.DecodeProgress(),
	})
}

func jobResponse(courseID, jobID uuid.UUID) gin.H {
	out := gin.H{"courseId": courseID}
	if jobID != uuid.Nil {
		out["jobId"] = jobID
	}
	return out
}

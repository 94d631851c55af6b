package handlers

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/http/response"
	"github.com/yungbote/coursegen-backend/internal/modules/coursegen/quality"
	"github.com/yungbote/coursegen-backend/internal/platform/apierr"
)

type SummaryValidator interface {
	ValidateSummary(ctx context.Context, original, summary string, opts quality.Options) (*types.QualityCheckResult, error)
	BatchValidate(ctx context.Context, pairs []quality.Pair, opts quality.Options) ([]*types.QualityCheckResult, error)
}

// maxBatchPairs bounds one batch request.
const maxBatchPairs = 64

type QualityHandler struct {
	validator SummaryValidator
}

func NewQualityHandler(v SummaryValidator) *QualityHandler {
	return &QualityHandler{validator: v}
}

type validateRequest struct {
	OriginalText string   `json:"originalText"`
	Summary      string   `json:"summary"`
	Threshold    *float64 `json:"threshold"`
	Debug        bool     `json:"debug"`
}

func (r validateRequest) options() quality.Options {
	opts := quality.Options{Debug: r.Debug}
	if r.Threshold != nil {
		opts.Threshold = *r.Threshold
	}
	return opts
}

// POST /api/quality/validate
func (h *QualityHandler) Validate(c *gin.Context) {
	var req validateRequest
	if err := bindJSON(c, &req); err != nil {
		respondErr(c, err)
		return
	}
	if req.Threshold != nil && *req.Threshold == 0 {
		respondErr(c, fmt.Errorf("%w: got 0", quality.ErrInvalidThreshold))
		return
	}
	res, err := h.validator.ValidateSummary(c.Request.Context(), req.OriginalText, req.Summary, req.options())
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"result": res})
}

type batchValidateRequest struct {
	Pairs []struct {
		OriginalText string `json:"originalText"`
		Summary      string `json:"summary"`
	} `json:"pairs"`
	Threshold *float64 `json:"threshold"`
	Debug     bool     `json:"debug"`
}

// POST /api/quality/validate/batch
func (h *QualityHandler) ValidateBatch(c *gin.Context) {
	var req batchValidateRequest
	if err := bindJSON(c, &req); err != nil {
		respondErr(c, err)
		return
	}
	if len(req.Pairs) == 0 || len(req.Pairs) > maxBatchPairs {
		respondErr(c, apierr.BadRequest("invalid_quality_request", fmt.Errorf("pairs must hold 1..%d items", maxBatchPairs)))
		return
	}
	opts := validateRequest{Threshold: req.Threshold, Debug: req.Debug}.options()
	if req.Threshold != nil && *req.Threshold == 0 {
		respondErr(c, fmt.Errorf("%w: got 0", quality.ErrInvalidThreshold))
		return
	}
	pairs := make([]quality.Pair, len(req.Pairs))
	for i, p := range req.Pairs {
		pairs[i] = quality.Pair{Original: p.OriginalText, Summary: p.Summary}
	}
	results, err := h.validator.BatchValidate(c.Request.Context(), pairs, opts)
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"results": results})
}

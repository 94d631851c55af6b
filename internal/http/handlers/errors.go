package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/http/response"
	"github.com/yungbote/coursegen-backend/internal/jobs/orchestrator"
	"github.com/yungbote/coursegen-backend/internal/modules/coursegen/quality"
	"github.com/yungbote/coursegen-backend/internal/platform/apierr"
)

// toAPIError maps domain errors onto HTTP status codes and stable error codes.
func toAPIError(err error) *apierr.Error {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return ae
	}
	var (
		provider *types.ProviderError
		input    *types.InputError
	)
	switch {
	case orchestrator.IsValidation(err), errors.As(err, &input):
		return apierr.BadRequest("validation_error", err)
	case orchestrator.IsDuplicate(err):
		return apierr.Conflict("duplicate_job", err)
	case orchestrator.IsStaleApproval(err):
		return apierr.Conflict("stale_approval", err)
	case orchestrator.IsNotFound(err):
		return apierr.NotFound("not_found", err)
	case orchestrator.IsConflict(err):
		return apierr.Conflict("conflict", err)
	case errors.Is(err, quality.ErrEmptyInput), errors.Is(err, quality.ErrInvalidThreshold):
		return apierr.BadRequest("invalid_quality_request", err)
	case errors.As(err, &provider):
		return apierr.New(http.StatusBadGateway, "provider_error", err)
	default:
		return apierr.Internal(err)
	}
}

func respondErr(c *gin.Context, err error) {
	ae := toAPIError(err)
	if ae.Status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	response.RespondAPIError(c, ae)
}

package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/http/response"
)

type BudgetCalculator interface {
	Calculate(ctx context.Context, courseID uuid.UUID) (*types.BudgetAllocation, error)
}

type BudgetHandler struct {
	budget BudgetCalculator
}

func NewBudgetHandler(budget BudgetCalculator) *BudgetHandler {
	return &BudgetHandler{budget: budget}
}

// POST /api/courses/:courseId/budget
func (h *BudgetHandler) Calculate(c *gin.Context) {
	courseID, err := courseIDParam(c)
	if err != nil {
		respondErr(c, err)
		return
	}
	alloc, err := h.budget.Calculate(c.Request.Context(), courseID)
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"allocation": alloc})
}

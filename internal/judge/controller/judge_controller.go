package controller

import (
	"context"
	"strings"

	"smartsolution/internal/judge/service"
	"smartsolution/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// ResultReader reads back the judging state of a submission.
type ResultReader interface {
	Result(ctx context.Context, submissionID string) (service.StatusView, error)
}

// JudgeController handles judge status requests.
type JudgeController struct {
	results ResultReader
}

// NewJudgeController creates a new controller.
func NewJudgeController(results ResultReader) *JudgeController {
	return &JudgeController{results: results}
}

// GetStatus returns status for one submission.
func (h *JudgeController) GetStatus(c *gin.Context) {
	submissionID := strings.TrimSpace(c.Param("id"))
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	view, err := h.results.Result(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, view)
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/college-registrar-api/internal/service"
	appErrors "github.com/noah-isme/college-registrar-api/pkg/errors"
	"github.com/noah-isme/college-registrar-api/pkg/response"
)

// GradeHandler exposes grade lifecycle endpoints.
type GradeHandler struct {
	grades *service.GradeService
}

// NewGradeHandler constructs GradeHandler.
func NewGradeHandler(grades *service.GradeService) *GradeHandler {
	return &GradeHandler{grades: grades}
}

type bulkApproveRequest struct {
	GradeIDs []string `json:"grade_ids"`
}

// Submit godoc
// @Summary Submit a grade for an enrollment subject
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.SubmitGradeRequest true "Grade payload"
// @Success 201 {object} response.Envelope
// @Router /grades [post]
func (h *GradeHandler) Submit(c *gin.Context) {
	var req service.SubmitGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	grade, err := h.grades.Submit(c.Request.Context(), claims.ActorProfileID(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, grade)
}

// Approve godoc
// @Summary Approve a submitted grade
// @Tags Grades
// @Produce json
// @Param id path string true "Grade ID"
// @Success 200 {object} response.Envelope
// @Router /grades/{id}/approve [put]
func (h *GradeHandler) Approve(c *gin.Context) {
	if err := h.grades.Approve(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"approved": true}, nil)
}

// BulkApprove godoc
// @Summary Approve a batch of submitted grades
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body bulkApproveRequest true "Grade ids"
// @Success 200 {object} response.Envelope
// @Router /grades/bulk-approve [put]
func (h *GradeHandler) BulkApprove(c *gin.Context) {
	var req bulkApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.grades.BulkApprove(c.Request.Context(), req.GradeIDs); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"approved": len(req.GradeIDs)}, nil)
}

// Pending godoc
// @Summary Unapproved grades awaiting registrar review
// @Tags Grades
// @Produce json
// @Param termId query string false "Filter by term"
// @Success 200 {object} response.Envelope
// @Router /grades/pending [get]
func (h *GradeHandler) Pending(c *gin.Context) {
	grades, err := h.grades.Pending(c.Request.Context(), c.Query("termId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades, nil)
}

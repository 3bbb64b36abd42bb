package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/college-registrar-api/internal/models"
	"github.com/noah-isme/college-registrar-api/internal/service"
	appErrors "github.com/noah-isme/college-registrar-api/pkg/errors"
	"github.com/noah-isme/college-registrar-api/pkg/response"
)

// RepeatEligibilityHandler exposes repeat cooldown reads and overrides.
type RepeatEligibilityHandler struct {
	repeats *service.RepeatEligibilityService
}

// NewRepeatEligibilityHandler constructs RepeatEligibilityHandler.
func NewRepeatEligibilityHandler(repeats *service.RepeatEligibilityService) *RepeatEligibilityHandler {
	return &RepeatEligibilityHandler{repeats: repeats}
}

type updateRepeatDateRequest struct {
	NewDate time.Time `json:"new_date" binding:"required"`
}

// Check godoc
// @Summary Repeat eligibility for a student's failed subjects
// @Tags RepeatEligibility
// @Produce json
// @Param studentId path string true "Student ID"
// @Param subjectId query string false "Narrow to one subject"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/repeat-eligibility [get]
func (h *RepeatEligibilityHandler) Check(c *gin.Context) {
	studentID := c.Param("studentId")
	claims := claimsFromContext(c)
	if claims != nil && claims.Role == models.RoleStudent {
		studentID = claims.ActorProfileID()
	}
	results, err := h.repeats.Check(c.Request.Context(), studentID, c.Query("subjectId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, nil)
}

// AllStudents godoc
// @Summary Repeat eligibility aggregated per student
// @Tags RepeatEligibility
// @Produce json
// @Param programId query string false "Filter by program"
// @Param yearLevel query int false "Filter by year level"
// @Success 200 {object} response.Envelope
// @Router /repeat-eligibility [get]
func (h *RepeatEligibilityHandler) AllStudents(c *gin.Context) {
	var yearLevel *int
	if raw := c.Query("yearLevel"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "yearLevel must be an integer"))
			return
		}
		yearLevel = &value
	}
	summaries, err := h.repeats.AllStudents(c.Request.Context(), c.Query("programId"), yearLevel)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summaries, nil)
}

// UpdateDate godoc
// @Summary Override a failing grade's repeat eligible date
// @Tags RepeatEligibility
// @Accept json
// @Produce json
// @Param id path string true "Grade ID"
// @Param payload body updateRepeatDateRequest true "New date"
// @Success 200 {object} response.Envelope
// @Router /grades/{id}/repeat-date [put]
func (h *RepeatEligibilityHandler) UpdateDate(c *gin.Context) {
	var req updateRepeatDateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.repeats.UpdateEligibilityDate(c.Request.Context(), c.Param("id"), req.NewDate); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"updated": true}, nil)
}

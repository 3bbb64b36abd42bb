package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/college-registrar-api/internal/models"
	"github.com/noah-isme/college-registrar-api/internal/service"
	"github.com/noah-isme/college-registrar-api/pkg/response"
)

// EligibilityHandler exposes subject eligibility reads.
type EligibilityHandler struct {
	eligibility *service.EligibilityService
}

// NewEligibilityHandler constructs EligibilityHandler.
func NewEligibilityHandler(eligibility *service.EligibilityService) *EligibilityHandler {
	return &EligibilityHandler{eligibility: eligibility}
}

func (h *EligibilityHandler) resolveStudentID(c *gin.Context) string {
	studentID := c.Param("studentId")
	claims := claimsFromContext(c)
	if claims != nil && claims.Role == models.RoleStudent {
		return claims.ActorProfileID()
	}
	return studentID
}

// Available godoc
// @Summary Subjects a student may enroll in
// @Tags Eligibility
// @Produce json
// @Param studentId path string true "Student ID"
// @Param termId query string false "Explicit term (defaults to the active term)"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/available-subjects [get]
func (h *EligibilityHandler) Available(c *gin.Context) {
	result, err := h.eligibility.AvailableSubjects(c.Request.Context(), h.resolveStudentID(c), c.Query("termId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Recommended godoc
// @Summary Subjects recommended for the student's year and semester
// @Tags Eligibility
// @Produce json
// @Param studentId path string true "Student ID"
// @Param termId query string false "Explicit term (defaults to the active term)"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/recommended-subjects [get]
func (h *EligibilityHandler) Recommended(c *gin.Context) {
	result, err := h.eligibility.RecommendedSubjects(c.Request.Context(), h.resolveStudentID(c), c.Query("termId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/college-registrar-api/internal/models"
	"github.com/noah-isme/college-registrar-api/internal/service"
	appErrors "github.com/noah-isme/college-registrar-api/pkg/errors"
	"github.com/noah-isme/college-registrar-api/pkg/response"
)

// IncResolutionHandler exposes the INC replacement workflow.
type IncResolutionHandler struct {
	resolutions *service.IncResolutionService
}

// NewIncResolutionHandler constructs IncResolutionHandler.
func NewIncResolutionHandler(resolutions *service.IncResolutionService) *IncResolutionHandler {
	return &IncResolutionHandler{resolutions: resolutions}
}

type bulkApproveResolutionsRequest struct {
	ResolutionIDs []string `json:"resolution_ids"`
}

// Create godoc
// @Summary Propose a numeric replacement for an INC grade
// @Tags IncResolutions
// @Accept json
// @Produce json
// @Param payload body service.CreateResolutionRequest true "Resolution payload"
// @Success 201 {object} response.Envelope
// @Router /inc-resolutions [post]
func (h *IncResolutionHandler) Create(c *gin.Context) {
	var req service.CreateResolutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	resolution, err := h.resolutions.Create(c.Request.Context(), claims.ActorProfileID(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, resolution)
}

// Approve godoc
// @Summary Approve one INC resolution
// @Tags IncResolutions
// @Produce json
// @Param id path string true "Resolution ID"
// @Success 200 {object} response.Envelope
// @Router /inc-resolutions/{id}/approve [put]
func (h *IncResolutionHandler) Approve(c *gin.Context) {
	if err := h.resolutions.Approve(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"approved": true}, nil)
}

// BulkApprove godoc
// @Summary Approve a batch of INC resolutions
// @Tags IncResolutions
// @Accept json
// @Produce json
// @Param payload body bulkApproveResolutionsRequest true "Resolution ids"
// @Success 200 {object} response.Envelope
// @Router /inc-resolutions/bulk-approve [put]
func (h *IncResolutionHandler) BulkApprove(c *gin.Context) {
	var req bulkApproveResolutionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.resolutions.BulkApprove(c.Request.Context(), req.ResolutionIDs); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"approved": len(req.ResolutionIDs)}, nil)
}

// StudentSubjects godoc
// @Summary INC grades currently on a student's record
// @Tags IncResolutions
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/inc-subjects [get]
func (h *IncResolutionHandler) StudentSubjects(c *gin.Context) {
	studentID := c.Param("studentId")
	claims := claimsFromContext(c)
	if claims != nil && claims.Role == models.RoleStudent {
		studentID = claims.ActorProfileID()
	}
	subjects, err := h.resolutions.StudentIncSubjects(c.Request.Context(), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subjects, nil)
}

// Mine godoc
// @Summary Resolutions proposed by the requesting professor
// @Tags IncResolutions
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /inc-resolutions/mine [get]
func (h *IncResolutionHandler) Mine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	resolutions, err := h.resolutions.ProfessorResolutions(c.Request.Context(), claims.ActorProfileID())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resolutions, nil)
}

// Pending godoc
// @Summary Unapproved resolutions awaiting registrar review
// @Tags IncResolutions
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /inc-resolutions/pending [get]
func (h *IncResolutionHandler) Pending(c *gin.Context) {
	resolutions, err := h.resolutions.PendingResolutions(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resolutions, nil)
}

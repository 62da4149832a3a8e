package handlers

import (
	"net/http"

	"github.com/jordanlanch/invoicefollowup/pkg/api/errors"
	"github.com/jordanlanch/invoicefollowup/pkg/compliance"
	"github.com/jordanlanch/invoicefollowup/pkg/followup"
	"github.com/jordanlanch/invoicefollowup/pkg/logger"
	"github.com/jordanlanch/invoicefollowup/pkg/models"
	"github.com/labstack/echo/v4"
)

// ComplianceHandler runs the tone check without sending anything
type ComplianceHandler struct {
	validator *compliance.Validator
	logger    logger.Logger
}

// NewComplianceHandler creates a new compliance handler
func NewComplianceHandler(v *compliance.Validator, log logger.Logger) *ComplianceHandler {
	return &ComplianceHandler{validator: v, logger: log}
}

// ValidateToneRequest is a draft sequence scored against a customer tier
type ValidateToneRequest struct {
	Tier  models.Tier           `json:"tier" validate:"required,oneof=GOVERNMENT VIP CORPORATE REGULAR"`
	Name  string                `json:"name"`
	Steps []models.SequenceStep `json:"steps" validate:"required,min=1"`
}

// ValidateTone godoc
// @Summary Score a draft sequence for cultural appropriateness
// @Tags Compliance
// @Accept json
// @Produce json
// @Param request body ValidateToneRequest true "Tier and steps"
// @Success 200 {object} compliance.Result
// @Failure 400 {object} models.ErrorResponse
// @Router /api/v1/compliance/validate [post]
func (h *ComplianceHandler) ValidateTone(c echo.Context) error {
	var req ValidateToneRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, h.logger, err)
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
	}
	if err := followup.ValidateSteps(req.Steps); err != nil {
		return errors.FromDomain(c, h.logger, err)
	}

	seq := &models.SequenceDefinition{Name: req.Name, Active: true, Steps: req.Steps}
	return c.JSON(http.StatusOK, h.validator.ValidateSequenceTone(seq, req.Tier))
}

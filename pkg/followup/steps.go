package followup

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jordanlanch/invoicefollowup/pkg/domain"
	"github.com/jordanlanch/invoicefollowup/pkg/models"
)

var validate = validator.New()

// ParseSteps decodes and validates the stored JSON step list
func ParseSteps(raw []byte) ([]models.SequenceStep, error) {
	var steps []models.SequenceStep
	if err := json.Unmarshal(raw, &steps); err != nil {
		return nil, domain.NewValidationError(fmt.Sprintf("steps are not valid JSON: %v", err))
	}
	if err := ValidateSteps(steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// ValidateSteps checks required fields and strictly increasing step numbers
func ValidateSteps(steps []models.SequenceStep) error {
	prev := 0
	for i, step := range steps {
		if err := validate.Struct(step); err != nil {
			return domain.NewValidationError(fmt.Sprintf("step %d: %v", i+1, err))
		}
		if step.StepNumber <= prev {
			return domain.NewValidationError(fmt.Sprintf("step numbers must be unique and increasing (step %d after %d)", step.StepNumber, prev))
		}
		prev = step.StepNumber
	}
	return nil
}

// ValidateDefinition checks a sequence before it is used
func ValidateDefinition(seq *models.SequenceDefinition) error {
	if seq.Quarantined {
		return domain.NewValidationError(fmt.Sprintf("sequence %d is quarantined: %s", seq.ID, seq.QuarantineReason))
	}
	if seq.Active && len(seq.Steps) == 0 {
		return domain.NewValidationError(fmt.Sprintf("active sequence %d has no steps", seq.ID))
	}
	return ValidateSteps(seq.Steps)
}

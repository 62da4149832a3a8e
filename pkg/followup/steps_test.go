package followup

import (
	"testing"

	"github.com/jordanlanch/invoicefollowup/pkg/domain"
	"github.com/jordanlanch/invoicefollowup/pkg/models"
	"github.com/jordanlanch/invoicefollowup/pkg/testdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSteps(t *testing.T) {
	t.Run("Success - valid step list", func(t *testing.T) {
		raw := []byte(`[
			{"step_number": 1, "delay_days": 3, "subject": "Reminder", "body": "Dear {{customer_name}}", "tone": "FORMAL", "language": "ENGLISH"},
			{"step_number": 2, "delay_days": 7, "subject": "Final", "body": "Dear {{customer_name}}", "tone": "FORMAL", "language": "ENGLISH", "final_notice": true}
		]`)

		steps, err := ParseSteps(raw)

		require.NoError(t, err)
		require.Len(t, steps, 2)
		assert.Equal(t, 3, steps[0].DelayDays)
		assert.True(t, steps[1].FinalNotice)
	})

	t.Run("Error - malformed JSON", func(t *testing.T) {
		_, err := ParseSteps([]byte(`{"step_number":`))
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("Error - missing subject", func(t *testing.T) {
		_, err := ParseSteps([]byte(`[{"step_number": 1, "delay_days": 0, "body": "x", "tone": "FORMAL", "language": "ENGLISH"}]`))
		assert.True(t, domain.IsValidation(err))
	})
}

func TestValidateSteps(t *testing.T) {
	steps := testdata.ReminderSequence(1, 1, 0).Steps
	require.NoError(t, ValidateSteps(steps))

	repeated := append([]models.SequenceStep(nil), steps...)
	repeated[1].StepNumber = 1
	assert.True(t, domain.IsValidation(ValidateSteps(repeated)))

	negative := append([]models.SequenceStep(nil), steps...)
	negative[0].DelayDays = -1
	assert.True(t, domain.IsValidation(ValidateSteps(negative)))
}

func TestValidateDefinition(t *testing.T) {
	seq := testdata.ReminderSequence(1, 1, 0)
	assert.NoError(t, ValidateDefinition(seq))

	seq.Steps = nil
	assert.True(t, domain.IsValidation(ValidateDefinition(seq)))

	seq.Active = false
	assert.NoError(t, ValidateDefinition(seq))

	seq.Quarantined = true
	assert.True(t, domain.IsValidation(ValidateDefinition(seq)))
}

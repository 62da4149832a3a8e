package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/jordanlanch/invoicefollowup/pkg/compliance"
	"github.com/jordanlanch/invoicefollowup/pkg/logger"
	"github.com/jordanlanch/invoicefollowup/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const governmentDraft = `{
	"tier": "GOVERNMENT",
	"name": "Ministry reminders",
	"steps": [
		{"step_number": 1, "delay_days": %d, "subject": "Payment reminder for invoice {{invoice_number}}",
		 "body": %q, "tone": "VERY_FORMAL", "language": "ENGLISH"},
		{"step_number": 2, "delay_days": 7, "subject": "Follow-up on invoice {{invoice_number}}",
		 "body": "Dear {{customer_name}}, we would be grateful for an update on invoice {{invoice_number}}. Sincerely",
		 "tone": "VERY_FORMAL", "language": "ENGLISH"}
	]
}`

func TestComplianceHandler_ValidateTone(t *testing.T) {
	h := NewComplianceHandler(compliance.NewValidator(nil), logger.Nop())

	validate := func(t *testing.T, body string) (int, compliance.Result) {
		t.Helper()
		c, rec := newJSONContext(newTestEcho(), http.MethodPost, "/api/v1/compliance/validate", body)
		require.NoError(t, h.ValidateTone(c))
		var res compliance.Result
		if rec.Code == http.StatusOK {
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		}
		return rec.Code, res
	}

	t.Run("Success - courteous sequence", func(t *testing.T) {
		status, res := validate(t, sprintfDraft(14, "Dear {{customer_name}}, we kindly remind you that invoice {{invoice_number}} is now due. Kind regards"))
		require.Equal(t, http.StatusOK, status)
		assert.True(t, res.IsAppropriate)
		assert.Equal(t, models.ToneVeryFormal, res.RecommendedTone)
	})

	t.Run("Success - aggressive sequence is scored, not rejected", func(t *testing.T) {
		status, res := validate(t, sprintfDraft(1, "Dear {{customer_name}}, pay immediately or face legal action. Kind regards"))
		require.Equal(t, http.StatusOK, status)
		assert.False(t, res.IsAppropriate)
		assert.NotEmpty(t, res.Issues)
		assert.NotEmpty(t, res.Violations)
	})

	t.Run("Error - unknown tier", func(t *testing.T) {
		status, _ := validate(t, `{"tier":"PLATINUM","steps":[{"step_number":1,"subject":"s","body":"b","tone":"FORMAL","language":"ENGLISH"}]}`)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("Error - no steps", func(t *testing.T) {
		status, _ := validate(t, `{"tier":"REGULAR","steps":[]}`)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("Error - steps out of order", func(t *testing.T) {
		status, _ := validate(t, `{"tier":"REGULAR","steps":[
			{"step_number":2,"subject":"s","body":"b","tone":"FORMAL","language":"ENGLISH"},
			{"step_number":1,"subject":"s","body":"b","tone":"FORMAL","language":"ENGLISH"}]}`)
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func sprintfDraft(delay int, body string) string {
	return fmt.Sprintf(governmentDraft, delay, body)
}

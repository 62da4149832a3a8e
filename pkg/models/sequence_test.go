package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsFinalNotice(t *testing.T) {
	t.Run("Last step by default", func(t *testing.T) {
		seq := &SequenceDefinition{Steps: []SequenceStep{{StepNumber: 1}, {StepNumber: 2}, {StepNumber: 3}}}
		assert.False(t, seq.IsFinalNotice(0))
		assert.True(t, seq.IsFinalNotice(2))
		assert.False(t, seq.IsFinalNotice(3))
	})

	t.Run("Single unflagged step is not a final notice", func(t *testing.T) {
		seq := &SequenceDefinition{Steps: []SequenceStep{{StepNumber: 1}}}
		assert.False(t, seq.IsFinalNotice(0))
	})

	t.Run("Flagged step wins", func(t *testing.T) {
		seq := &SequenceDefinition{Steps: []SequenceStep{{StepNumber: 1}, {StepNumber: 2, FinalNotice: true}, {StepNumber: 3}}}
		assert.True(t, seq.IsFinalNotice(1))
		assert.False(t, seq.IsFinalNotice(2))
	})
}

func TestToneFormality(t *testing.T) {
	assert.Greater(t, ToneVeryFormal.Formality(), ToneFormal.Formality())
	assert.Greater(t, ToneFormal.Formality(), ToneBusiness.Formality())
	assert.Greater(t, ToneBusiness.Formality(), ToneFriendly.Formality())
	assert.Equal(t, 0, Tone("SHOUTY").Formality())
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusStopped.IsTerminal())
	assert.True(t, StatusError.IsTerminal())
	assert.False(t, StatusWaitingForWindow.IsTerminal())
	assert.True(t, DeliveryBounced.IsTerminal())
	assert.False(t, DeliverySent.IsTerminal())
}

func TestDaysOverdue(t *testing.T) {
	due := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	inv := &InvoiceFacts{DueDate: due}
	assert.Equal(t, 0, inv.DaysOverdue(due.Add(-time.Hour)))
	assert.Equal(t, 10, inv.DaysOverdue(due.Add(10*24*time.Hour+time.Hour)))
}

func TestTimeRangeContains(t *testing.T) {
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r := TimeRange{From: from, To: from.Add(24 * time.Hour)}
	assert.True(t, r.Contains(from))
	assert.False(t, r.Contains(from.Add(24*time.Hour)))
	assert.True(t, TimeRange{}.Contains(from))
}

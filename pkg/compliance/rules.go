package compliance

import "github.com/jordanlanch/invoicefollowup/pkg/models"

// Severity of a rule violation
type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

// PhraseRule penalizes an aggressive phrase outside the final-notice step
type PhraseRule struct {
	Phrase   string
	Severity Severity
	Penalty  int
}

// RuleTable is the versioned rule data consumed by the Validator
type RuleTable struct {
	Version string
	Phrases []PhraseRule

	// MinFirstStepDelay is the minimum first-step delay in days per tier
	MinFirstStepDelay map[models.Tier]int
	// Thresholds is the minimum score for a sequence to be appropriate
	Thresholds       map[models.Tier]int
	DefaultThreshold int

	DelayPenalty        int
	ToneDecreasePenalty int
	ToneFloorPenalty    int
	ShoutingPenalty     int

	// GovernmentToneFloor is the least formal tone allowed for government customers
	GovernmentToneFloor models.Tone
}

// DefaultRules returns the built-in rule table
func DefaultRules() *RuleTable {
	return &RuleTable{
		Version: "2025.1",
		Phrases: []PhraseRule{
			{Phrase: "legal action", Severity: SeverityHigh, Penalty: 25},
			{Phrase: "lawsuit", Severity: SeverityHigh, Penalty: 25},
			{Phrase: "collection agency", Severity: SeverityHigh, Penalty: 25},
			{Phrase: "immediately", Severity: SeverityMedium, Penalty: 15},
			{Phrase: "demand", Severity: SeverityMedium, Penalty: 15},
			{Phrase: "final warning", Severity: SeverityMedium, Penalty: 15},
			{Phrase: "failure to pay", Severity: SeverityMedium, Penalty: 15},
			{Phrase: "you must", Severity: SeverityLow, Penalty: 5},
			{Phrase: "إجراء قانوني", Severity: SeverityHigh, Penalty: 25},
			{Phrase: "إجراءات قانونية", Severity: SeverityHigh, Penalty: 25},
			{Phrase: "فورا", Severity: SeverityMedium, Penalty: 15},
			{Phrase: "نطالب", Severity: SeverityMedium, Penalty: 15},
		},
		MinFirstStepDelay: map[models.Tier]int{
			models.TierGovernment: 14,
			models.TierVIP:        7,
			models.TierCorporate:  3,
			models.TierRegular:    0,
		},
		Thresholds: map[models.Tier]int{
			models.TierGovernment: 85,
			models.TierVIP:        85,
		},
		DefaultThreshold:    70,
		DelayPenalty:        20,
		ToneDecreasePenalty: 15,
		ToneFloorPenalty:    10,
		ShoutingPenalty:     5,
		GovernmentToneFloor: models.ToneFormal,
	}
}

// Threshold returns the minimum appropriate score for a tier
func (r *RuleTable) Threshold(tier models.Tier) int {
	if t, ok := r.Thresholds[tier]; ok {
		return t
	}
	return r.DefaultThreshold
}

// RecommendedTone returns the tone suited to a tier
func RecommendedTone(tier models.Tier) models.Tone {
	switch tier {
	case models.TierGovernment:
		return models.ToneVeryFormal
	case models.TierVIP:
		return models.ToneFormal
	case models.TierCorporate:
		return models.ToneBusiness
	default:
		return models.ToneFriendly
	}
}

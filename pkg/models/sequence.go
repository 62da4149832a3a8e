package models

// Tone is the declared formality of a step
type Tone string

const (
	ToneVeryFormal Tone = "VERY_FORMAL"
	ToneFormal     Tone = "FORMAL"
	ToneBusiness   Tone = "BUSINESS"
	ToneFriendly   Tone = "FRIENDLY"
)

// Formality ranks tones from 4 (very formal) to 1 (friendly); unknown tones rank 0
func (t Tone) Formality() int {
	switch t {
	case ToneVeryFormal:
		return 4
	case ToneFormal:
		return 3
	case ToneBusiness:
		return 2
	case ToneFriendly:
		return 1
	default:
		return 0
	}
}

// Language is the declared language of a step
type Language string

const (
	LanguageEnglish Language = "ENGLISH"
	LanguageArabic  Language = "ARABIC"
	LanguageBoth    Language = "BOTH"
)

// Tier is the customer relationship classification
type Tier string

const (
	TierGovernment Tier = "GOVERNMENT"
	TierVIP        Tier = "VIP"
	TierCorporate  Tier = "CORPORATE"
	TierRegular    Tier = "REGULAR"
)

// Valid reports whether the tier is known
func (t Tier) Valid() bool {
	switch t {
	case TierGovernment, TierVIP, TierCorporate, TierRegular:
		return true
	}
	return false
}

// SequenceStep is a single message definition within a sequence
type SequenceStep struct {
	StepNumber  int      `json:"step_number" validate:"required,min=1"`
	DelayDays   int      `json:"delay_days" validate:"min=0,max=365"`
	Subject     string   `json:"subject" validate:"required"`
	Body        string   `json:"body" validate:"required"`
	SubjectAr   string   `json:"subject_ar,omitempty"`
	BodyAr      string   `json:"body_ar,omitempty"`
	Tone        Tone     `json:"tone" validate:"required,oneof=VERY_FORMAL FORMAL BUSINESS FRIENDLY"`
	Language    Language `json:"language" validate:"required,oneof=ENGLISH ARABIC BOTH"`
	TemplateID  *int64   `json:"template_id,omitempty"`
	FinalNotice bool     `json:"final_notice,omitempty"`
}

// SequenceDefinition is an ordered, reusable communication plan
type SequenceDefinition struct {
	ID             int64          `json:"id"`
	OrganizationID int64          `json:"organization_id"`
	Name           string         `json:"name"`
	Active         bool           `json:"active"`
	Steps          []SequenceStep `json:"steps"`

	// Quarantined is set when the stored steps failed to parse or validate
	Quarantined      bool   `json:"quarantined"`
	QuarantineReason string `json:"quarantine_reason,omitempty"`
}

// IsFinalNotice reports whether the step at idx is the final notice.
// Without an explicitly flagged step the last step of a multi-step
// sequence is the final notice.
func (s *SequenceDefinition) IsFinalNotice(idx int) bool {
	if idx < 0 || idx >= len(s.Steps) {
		return false
	}
	for _, step := range s.Steps {
		if step.FinalNotice {
			return s.Steps[idx].FinalNotice
		}
	}
	return len(s.Steps) > 1 && idx == len(s.Steps)-1
}

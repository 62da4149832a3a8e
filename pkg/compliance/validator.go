package compliance

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jordanlanch/invoicefollowup/pkg/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Violation is one rule hit
type Violation struct {
	Rule       string   `json:"rule"`
	Severity   Severity `json:"severity"`
	Penalty    int      `json:"penalty"`
	StepNumber int      `json:"step_number"`
	Message    string   `json:"message"`
}

// Result is the verdict for a sequence or a single rendered step
type Result struct {
	IsAppropriate   bool        `json:"is_appropriate"`
	CulturalScore   int         `json:"cultural_score"`
	RecommendedTone models.Tone `json:"recommended_tone"`
	Issues          []string    `json:"issues"`
	Suggestions     []string    `json:"suggestions"`
	Violations      []Violation `json:"violations"`
	RuleVersion     string      `json:"rule_version"`
}

// HasHighSeverity reports whether any violation is high severity
func (r *Result) HasHighSeverity() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityHigh {
			return true
		}
	}
	return false
}

// Validator scores message content against a tier. It is stateless.
type Validator struct {
	rules *RuleTable
}

// NewValidator creates a validator; a nil table uses DefaultRules
func NewValidator(rules *RuleTable) *Validator {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Validator{rules: rules}
}

// Rules returns the rule table in use
func (v *Validator) Rules() *RuleTable {
	return v.rules
}

// ValidateSequenceTone scores every step of a sequence definition
func (v *Validator) ValidateSequenceTone(seq *models.SequenceDefinition, tier models.Tier) Result {
	c := v.newCollector(tier)
	if seq == nil || len(seq.Steps) == 0 {
		c.add(Violation{Rule: "empty_sequence", Severity: SeverityHigh, Penalty: 100, Message: "sequence has no steps"})
		return c.result()
	}

	for i := range seq.Steps {
		step := seq.Steps[i]
		v.checkStep(c, seq, i, tier, step.Subject, step.Body, step.SubjectAr, step.BodyAr)
	}
	return c.result()
}

// ValidateStep scores one rendered step. It is the gate applied before dispatch.
func (v *Validator) ValidateStep(seq *models.SequenceDefinition, idx int, subject, body string, tier models.Tier) Result {
	c := v.newCollector(tier)
	if seq == nil || idx < 0 || idx >= len(seq.Steps) {
		c.add(Violation{Rule: "unknown_step", Severity: SeverityHigh, Penalty: 100, Message: fmt.Sprintf("step index %d does not exist", idx)})
		return c.result()
	}
	v.checkStep(c, seq, idx, tier, subject, body)
	return c.result()
}

func (v *Validator) checkStep(c *collector, seq *models.SequenceDefinition, idx int, tier models.Tier, texts ...string) {
	step := seq.Steps[idx]
	n := step.StepNumber

	if idx == 0 {
		if min := v.rules.MinFirstStepDelay[tier]; step.DelayDays < min {
			c.add(Violation{
				Rule:       "first_step_delay",
				Severity:   SeverityHigh,
				Penalty:    v.rules.DelayPenalty,
				StepNumber: n,
				Message:    fmt.Sprintf("step %d: first reminder after %d days is too early for %s customers (minimum %d days)", n, step.DelayDays, strings.ToLower(string(tier)), min),
			})
		}
	} else if prev := seq.Steps[idx-1]; step.Tone.Formality() < prev.Tone.Formality() {
		c.add(Violation{
			Rule:       "tone_decrease",
			Severity:   SeverityMedium,
			Penalty:    v.rules.ToneDecreasePenalty,
			StepNumber: n,
			Message:    fmt.Sprintf("step %d: tone drops from %s to %s", n, prev.Tone, step.Tone),
		})
	}

	if tier == models.TierGovernment && step.Tone.Formality() < v.rules.GovernmentToneFloor.Formality() {
		c.add(Violation{
			Rule:       "tone_floor",
			Severity:   SeverityMedium,
			Penalty:    v.rules.ToneFloorPenalty,
			StepNumber: n,
			Message:    fmt.Sprintf("step %d: %s tone is too casual for government customers", n, step.Tone),
		})
	}

	normalized := make([]string, 0, len(texts))
	for _, t := range texts {
		if t != "" {
			normalized = append(normalized, normalize(t))
		}
	}

	if !seq.IsFinalNotice(idx) {
		for _, rule := range v.rules.Phrases {
			phrase := normalize(rule.Phrase)
			for _, text := range normalized {
				if containsPhrase(text, phrase) {
					c.add(Violation{
						Rule:       "aggressive_phrase",
						Severity:   rule.Severity,
						Penalty:    rule.Penalty,
						StepNumber: n,
						Message:    fmt.Sprintf("step %d: aggressive phrase %q outside the final notice", n, rule.Phrase),
					})
					break
				}
			}
		}
	}

	for _, t := range texts {
		if isShouting(t) {
			c.add(Violation{
				Rule:       "shouting",
				Severity:   SeverityLow,
				Penalty:    v.rules.ShoutingPenalty,
				StepNumber: n,
				Message:    fmt.Sprintf("step %d: capitalised words or repeated exclamation marks", n),
			})
			break
		}
	}

	body := ""
	if len(texts) > 1 {
		body = normalize(texts[1])
	}
	if body != "" && !hasAnyPrefix(body, greetings) {
		c.suggest(fmt.Sprintf("Open step %d with a greeting such as \"Dear\"", n))
	}
	if body != "" && !containsAny(body, closings) {
		c.suggest(fmt.Sprintf("Close step %d with a courteous sign-off such as \"Kind regards\"", n))
	}
	if step.Language == models.LanguageBoth && (step.SubjectAr == "" || step.BodyAr == "") {
		c.suggest(fmt.Sprintf("Provide the Arabic subject and body for bilingual step %d", n))
	}
	if rec := RecommendedTone(tier); step.Tone.Formality() < rec.Formality() {
		c.suggest(fmt.Sprintf("Consider a %s tone for step %d", rec, n))
	}
}

var greetings = []string{"dear", "hello", "hi ", "hi,", "good morning", "good afternoon", "greetings", "عزيزي", "السيد", "السادة", "السلام عليكم", "تحية"}

var closings = []string{"regards", "sincerely", "thank you", "thanks", "مع التحية", "شكرا", "وتفضلوا"}

type collector struct {
	rules       *RuleTable
	tier        models.Tier
	violations  []Violation
	suggestions []string
}

func (v *Validator) newCollector(tier models.Tier) *collector {
	return &collector{rules: v.rules, tier: tier}
}

func (c *collector) add(v Violation) {
	c.violations = append(c.violations, v)
}

func (c *collector) suggest(s string) {
	for _, existing := range c.suggestions {
		if existing == s {
			return
		}
	}
	c.suggestions = append(c.suggestions, s)
}

func (c *collector) result() Result {
	score := 100
	issues := make([]string, 0, len(c.violations))
	for _, v := range c.violations {
		score -= v.Penalty
		issues = append(issues, v.Message)
	}
	if score < 0 {
		score = 0
	}

	res := Result{
		CulturalScore:   score,
		RecommendedTone: RecommendedTone(c.tier),
		Issues:          issues,
		Suggestions:     c.suggestions,
		Violations:      c.violations,
		RuleVersion:     c.rules.Version,
	}
	if res.Suggestions == nil {
		res.Suggestions = []string{}
	}
	if res.Violations == nil {
		res.Violations = []Violation{}
	}
	res.IsAppropriate = !res.HasHighSeverity() && score >= c.rules.Threshold(c.tier)
	return res
}

// normalize folds compatibility forms and case so rule matching is stable
func normalize(s string) string {
	return strings.TrimSpace(cases.Fold().String(norm.NFKC.String(s)))
}

// containsPhrase matches ASCII phrases on word boundaries and other scripts by substring
func containsPhrase(text, phrase string) bool {
	if phrase == "" {
		return false
	}
	if !isASCII(phrase) {
		return strings.Contains(text, phrase)
	}
	for start := 0; start < len(text); {
		i := strings.Index(text[start:], phrase)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(phrase)
		before, _ := utf8.DecodeLastRuneInString(text[:i])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if (i == 0 || !isWordRune(before)) && (end == len(text) || !isWordRune(after)) {
			return true
		}
		start = i + 1
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// isShouting flags words of four or more capital Latin letters, or "!!"
func isShouting(s string) bool {
	if strings.Contains(s, "!!") {
		return true
	}
	for _, word := range strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) }) {
		if len(word) < 4 {
			continue
		}
		upper := true
		for _, r := range word {
			if !unicode.Is(unicode.Latin, r) || !unicode.IsUpper(r) {
				upper = false
				break
			}
		}
		if upper {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

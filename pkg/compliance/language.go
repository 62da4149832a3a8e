package compliance

import (
	"math"
	"unicode"
)

// LanguageInfo describes the script mix of a text
type LanguageInfo struct {
	HasArabic        bool    `json:"has_arabic"`
	ArabicPercentage float64 `json:"arabic_percentage"`
	IsRTL            bool    `json:"is_rtl"`
	MixedLanguage    bool    `json:"mixed_language"`
}

const (
	rtlThreshold   = 50.0
	mixedThreshold = 10.0
)

// DetectArabicLanguage measures the share of Arabic letters among all letters.
// Digits, punctuation and spaces are ignored.
func DetectArabicLanguage(text string) LanguageInfo {
	var letters, arabic, latin int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		switch {
		case unicode.Is(unicode.Arabic, r):
			arabic++
		case unicode.Is(unicode.Latin, r):
			latin++
		}
	}
	if letters == 0 {
		return LanguageInfo{}
	}

	arabicPct := percentage(arabic, letters)
	latinPct := percentage(latin, letters)
	return LanguageInfo{
		HasArabic:        arabic > 0,
		ArabicPercentage: arabicPct,
		IsRTL:            arabicPct > rtlThreshold,
		MixedLanguage:    arabicPct >= mixedThreshold && latinPct >= mixedThreshold,
	}
}

func percentage(part, total int) float64 {
	return math.Round(float64(part)/float64(total)*10000) / 100
}

package oracle

import (
	"strings"

	"github.com/google/uuid"
	"github.com/wasilibs/go-re2"
	"golang.org/x/text/unicode/norm"
)

// DefaultRiskThreshold is the score at which a lead field is dropped from
// the prompt.
const DefaultRiskThreshold = 30

type injectionPattern struct {
	pattern    *re2.Regexp
	kind       string
	riskWeight int
}

// Prompt injection patterns checked in lead fields (name, company, industry).
var injectionPatterns = []injectionPattern{
	{re2.MustCompile(`(?i)(system|assistant|user)\s*:\s*`), "role_manipulation", 20},
	{re2.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|rules?|prompts?)`), "role_manipulation", 30},
	{re2.MustCompile(`(?i)forget\s+(all\s+)?(previous|prior)\s+(instructions?|rules?|prompts?)`), "role_manipulation", 30},
	{re2.MustCompile(`(?i)you\s+are\s+now\s+(a|an|the)\s+`), "role_manipulation", 25},
	{re2.MustCompile(`(?i)new\s+instructions?\s*:`), "direct_injection", 25},
	{re2.MustCompile(`(?i)override\s+(previous|prior|default|system)\s+(instructions?|rules?)`), "direct_injection", 25},
	{re2.MustCompile(`[A-Za-z0-9+/]{200,}={0,2}`), "encoded_injection", 15},
	{re2.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{00AD}]`), "encoded_injection", 20},
	{re2.MustCompile(`(?i)\{\{[^}]*(?:system|exec|eval|import)[^}]*\}\}`), "delimiter_attack", 30},
	{re2.MustCompile(`<\|(?:system|assistant|user|im_start|im_end)[^|]*\|>`), "delimiter_attack", 25},
	{re2.MustCompile(`(?i)</?\s*(system|assistant|instructions?)\s*>`), "delimiter_attack", 25},
}

// Validator scores untrusted lead attributes before they reach the prompt.
type Validator struct {
	threshold int
	maxLen    int
}

// NewValidator returns a validator; zero values take defaults.
func NewValidator(threshold, maxLen int) *Validator {
	if threshold <= 0 {
		threshold = DefaultRiskThreshold
	}
	if maxLen <= 0 {
		maxLen = 200
	}
	return &Validator{threshold: threshold, maxLen: maxLen}
}

// Verdict is the result of scoring one field.
type Verdict struct {
	Safe      bool
	Detected  []string
	RiskScore int
}

// Validate scores content.
func (v *Validator) Validate(content string) Verdict {
	out := Verdict{Safe: true}
	if content == "" {
		return out
	}

	normalized := normalizeForDetection(content)
	for _, p := range injectionPatterns {
		if p.pattern.MatchString(normalized) || p.pattern.MatchString(content) {
			out.Safe = false
			out.Detected = append(out.Detected, p.kind)
			out.RiskScore += p.riskWeight
		}
	}
	if float64(countControlChars(content))/float64(len(content)+1) > 0.1 {
		out.Safe = false
		out.Detected = append(out.Detected, "high_control_char_ratio")
		out.RiskScore += 25
	}
	if out.RiskScore >= v.threshold {
		out.Safe = false
	}
	return out
}

// Clean returns a field fit for the prompt: normalized, single-line and
// truncated, or empty when it looks like an injection attempt.
func (v *Validator) Clean(field string) (string, bool) {
	if !v.Validate(field).Safe {
		return "", false
	}
	s := strings.Join(strings.Fields(norm.NFKC.String(field)), " ")
	if r := []rune(s); len(r) > v.maxLen {
		s = string(r[:v.maxLen])
	}
	return s, true
}

func countControlChars(s string) int {
	n := 0
	for _, r := range s {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			n++
		}
	}
	return n
}

func normalizeForDetection(s string) string {
	var b strings.Builder
	for _, r := range norm.NFKC.String(s) {
		if r >= 32 || r == '\n' || r == '\t' {
			b.WriteRune(r)
		}
	}
	return strings.ToLower(b.String())
}

// wrapExternal fences untrusted data with a random marker.
func wrapExternal(content string) string {
	marker := "[EXTERNAL_DATA:" + uuid.NewString()[:8] + "]"
	return marker + "\n" + content + "\n" + marker
}

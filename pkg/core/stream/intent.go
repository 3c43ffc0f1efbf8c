package stream

import "regexp"

// Verdict is the result of screening a prompt.
type Verdict struct {
	Blocked bool
	// Reason is the user-facing explanation for a blocked prompt.
	Reason string
}

// Prefilter screens a prompt before any provider call.
type Prefilter interface {
	Screen(prompt string) Verdict
}

// DefaultIntentReason is shown for prompts that ask for a diagnosis or
// a prescription.
const DefaultIntentReason = "I can't help with diagnoses, treatment plans or prescriptions. " +
	"Please consult a licensed medical professional. I'm happy to help with general wellness questions."

// DefaultIntentPatterns match prompts asking for a diagnosis, treatment
// plan or prescription.
var DefaultIntentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bdiagnose (?:me|my|this)\b`),
	regexp.MustCompile(`(?i)\bwhat (?:disease|illness|condition|infection) do i have\b`),
	regexp.MustCompile(`(?i)\bdo i have (?:cancer|diabetes|covid|an? (?:infection|tumou?r|std|sti))\b`),
	regexp.MustCompile(`(?i)\b(?:prescribe|prescription for)\b`),
	regexp.MustCompile(`(?i)\bwhat (?:medication|medicine|drug|antibiotic)s? should i take\b`),
	regexp.MustCompile(`(?i)\bhow (?:much|many) (?:mg|milligrams|pills|tablets|doses)\b[^?]*\bshould i take\b`),
	regexp.MustCompile(`(?i)\b(?:dosage|dose) of [a-z]+ (?:for|should)\b`),
}

// IntentFilter blocks prompts matching any of its patterns.
type IntentFilter struct {
	Patterns []*regexp.Regexp
	Reason   string
}

// NewIntentFilter returns a filter over DefaultIntentPatterns.
func NewIntentFilter() *IntentFilter {
	return &IntentFilter{Patterns: DefaultIntentPatterns, Reason: DefaultIntentReason}
}

// Screen implements Prefilter.
func (f *IntentFilter) Screen(prompt string) Verdict {
	for _, re := range f.Patterns {
		if re.MatchString(prompt) {
			return Verdict{Blocked: true, Reason: f.Reason}
		}
	}
	return Verdict{}
}

package stream

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMinChars is the smallest amount of non-boilerplate text a
// response must carry to be kept.
const DefaultMinChars = 25

// Classifier decides whether a finished response is worth keeping.
type Classifier interface {
	// Insufficient reports whether text carries no user-relevant content.
	Insufficient(text string) bool
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(text string) bool

// Insufficient implements Classifier.
func (f ClassifierFunc) Insufficient(text string) bool { return f(text) }

// DefaultBoilerplate matches the disclaimer and refusal phrases the model
// wraps around answers. Patterns are applied in order.
var DefaultBoilerplate = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\[wellness guide\]:?`),
	regexp.MustCompile(`(?i)\**disclaimer\**:?\**`),
	regexp.MustCompile(`(?i)\bI(?:'m| am) (?:not|an AI and not|an AI, not) (?:a )?(?:doctor|physician|medical professional)[^.!?\n]*[.!?]?`),
	regexp.MustCompile(`(?i)\bI (?:can(?:no|')t|am unable to|'m unable to|am not able to) (?:provide|give|offer|make) (?:a |any )?(?:medical )?(?:diagnosis|diagnoses|treatment(?: plans?)?|prescriptions?|medical advice)[^.!?\n]*[.!?]?`),
	regexp.MustCompile(`(?i)\b(?:please )?(?:consult|see|speak (?:with|to)|talk to|contact) (?:a|your) (?:licensed |qualified )?(?:medical professional|healthcare (?:provider|professional)|doctor|physician)[^.!?\n]*[.!?]?`),
	regexp.MustCompile(`(?i)\bthis (?:information )?is not (?:a )?substitute for professional medical advice[^.!?\n]*[.!?]?`),
	regexp.MustCompile(`(?i)\b(?:this is )?for (?:general )?informational purposes only[^.!?\n]*[.!?]?`),
}

var whitespace = regexp.MustCompile(`\s+`)

// BoilerplateFilter strips known boilerplate and compares what is left
// against MinChars.
type BoilerplateFilter struct {
	Patterns []*regexp.Regexp
	MinChars int
}

// NewBoilerplateFilter returns a filter over DefaultBoilerplate. A
// non-positive minChars selects DefaultMinChars.
func NewBoilerplateFilter(minChars int) *BoilerplateFilter {
	if minChars <= 0 {
		minChars = DefaultMinChars
	}
	return &BoilerplateFilter{Patterns: DefaultBoilerplate, MinChars: minChars}
}

// Strip removes every boilerplate match and collapses whitespace.
func (f *BoilerplateFilter) Strip(text string) string {
	for _, re := range f.Patterns {
		text = re.ReplaceAllString(text, " ")
	}
	text = whitespace.ReplaceAllString(text, " ")
	return strings.Trim(text, " \t\n*_-:>#")
}

// Insufficient implements Classifier.
func (f *BoilerplateFilter) Insufficient(text string) bool {
	return utf8.RuneCountInString(f.Strip(text)) < f.MinChars
}

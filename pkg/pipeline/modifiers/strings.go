package modifiers

import (
	"context"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nainya/entitycore/pkg/pipeline"
	"github.com/nainya/entitycore/pkg/stage"
	"github.com/nainya/entitycore/pkg/value"
)

const notString = "value is not string"

// stringTransform maps string values and leaves null untouched. Casers are
// stateful, so each call builds its own.
type stringTransform struct {
	name string
	fn   func(string) string
}

func (m stringTransform) Name() string { return m.name }

func (m stringTransform) Call(_ context.Context, s stage.Stage, _ pipeline.Object) stage.Stage {
	v, ok := s.Value()
	if !ok || v.IsNull() {
		return s
	}
	str, ok := v.AsString()
	if !ok {
		return stage.Invalid(notString)
	}
	return s.WithValue(value.String(m.fn(str)))
}

// Trim removes leading and trailing white space
func Trim() pipeline.Modifier {
	return stringTransform{name: "trim", fn: strings.TrimSpace}
}

// Lowercase folds a string to lower case
func Lowercase() pipeline.Modifier {
	return stringTransform{name: "lowercase", fn: func(s string) string {
		return cases.Lower(language.Und).String(s)
	}}
}

// Uppercase folds a string to upper case
func Uppercase() pipeline.Modifier {
	return stringTransform{name: "uppercase", fn: func(s string) string {
		return cases.Upper(language.Und).String(s)
	}}
}

// Capitalize title-cases every word
func Capitalize() pipeline.Modifier {
	return stringTransform{name: "capitalize", fn: func(s string) string {
		return cases.Title(language.Und).String(s)
	}}
}

// RegexModifier validates strings against a pattern
type RegexModifier struct {
	re *regexp.Regexp
}

// Regex compiles pattern once; the modifier rejects non-matching strings
func Regex(pattern string) (*RegexModifier, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("regex %q: %w", pattern, err)
	}
	return &RegexModifier{re: re}, nil
}

func (m *RegexModifier) Name() string { return "regex" }

func (m *RegexModifier) Call(_ context.Context, s stage.Stage, _ pipeline.Object) stage.Stage {
	v, ok := s.Value()
	if !ok || v.IsNull() {
		return s
	}
	str, ok := v.AsString()
	if !ok {
		return stage.Invalid(notString)
	}
	if !m.re.MatchString(str) {
		return stage.Invalid(fmt.Sprintf("value doesn't match /%s/", m.re.String()))
	}
	return s
}

type emailModifier struct{}

// Email rejects strings that are not a bare e-mail address
func Email() pipeline.Modifier { return emailModifier{} }

func (emailModifier) Name() string { return "email" }

func (emailModifier) Call(_ context.Context, s stage.Stage, _ pipeline.Object) stage.Stage {
	v, ok := s.Value()
	if !ok || v.IsNull() {
		return s
	}
	str, ok := v.AsString()
	if !ok {
		return stage.Invalid(notString)
	}
	addr, err := mail.ParseAddress(str)
	if err != nil || addr.Address != str {
		return stage.Invalid("value is not a valid email address")
	}
	return s
}

// LengthModifier bounds the length of strings (in runes) and arrays
type LengthModifier struct {
	min, max int
}

// Length accepts lengths in [min, max]; a negative max means unbounded
func Length(min, max int) *LengthModifier { return &LengthModifier{min: min, max: max} }

func (m *LengthModifier) Name() string { return "length" }

func (m *LengthModifier) Call(_ context.Context, s stage.Stage, _ pipeline.Object) stage.Stage {
	v, ok := s.Value()
	if !ok || v.IsNull() {
		return s
	}
	var n int
	if str, isStr := v.AsString(); isStr {
		n = utf8.RuneCountInString(str)
	} else if items, isArr := v.AsArray(); isArr {
		n = len(items)
	} else {
		return stage.Invalid("value has no length")
	}
	switch {
	case m.max >= 0 && (n < m.min || n > m.max):
		if m.min == m.max {
			return stage.Invalid(fmt.Sprintf("length must be %d", m.min))
		}
		return stage.Invalid(fmt.Sprintf("length must be between %d and %d", m.min, m.max))
	case n < m.min:
		return stage.Invalid(fmt.Sprintf("length must be at least %d", m.min))
	}
	return s
}

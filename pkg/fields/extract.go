package fields

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"billocr/pkg/bill"
)

// ErrUnknownSchema is returned for a bill type with no registered schema.
var ErrUnknownSchema = errors.New("fields: no schema for bill type")

var colonRE = regexp.MustCompile(`\s*:\s*`)

type compiledRule struct {
	re     *regexp.Regexp
	reject *regexp.Regexp
}

type compiledField struct {
	field bill.Field
	rules []compiledRule
}

// Extractor maps corrected text to field values using per-type schemas.
// It is safe for concurrent use.
type Extractor struct {
	mu      sync.RWMutex
	schemas map[bill.Type][]compiledField
}

// NewExtractor returns an extractor with the electric and water schemas registered.
func NewExtractor() *Extractor {
	e := &Extractor{schemas: make(map[bill.Type][]compiledField)}
	for t, s := range map[bill.Type]Schema{bill.Electric: Electric, bill.Water: Water} {
		if err := e.Register(t, s); err != nil {
			panic(err)
		}
	}
	return e
}

// Register compiles s and installs it for t, replacing any previous schema.
func (e *Extractor) Register(t bill.Type, s Schema) error {
	compiled, err := compile(s)
	if err != nil {
		return fmt.Errorf("schema %s: %w", t, err)
	}
	e.mu.Lock()
	e.schemas[t] = compiled
	e.mu.Unlock()
	return nil
}

// Supports reports whether a schema is registered for t.
func (e *Extractor) Supports(t bill.Type) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.schemas[t]
	return ok
}

// Fields lists the fields the schema for t can produce, in schema order.
func (e *Extractor) Fields(t bill.Type) []bill.Field {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := e.schemas[t]
	out := make([]bill.Field, 0, len(s))
	for _, f := range s {
		out = append(out, f.field)
	}
	return out
}

// Extract runs every field's cascade over the normalized text. Fields with no match,
// or whose first match is empty, are absent from the result.
func (e *Extractor) Extract(text string, t bill.Type) (map[bill.Field]string, error) {
	e.mu.RLock()
	s, ok := e.schemas[t]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSchema, t)
	}

	text = normalize(text)
	out := make(map[bill.Field]string)
	for _, f := range s {
		for _, r := range f.rules {
			v, matched := r.find(text)
			if !matched {
				continue
			}
			if v != "" {
				out[f.field] = v
			}
			break
		}
	}
	return out, nil
}

func compile(s Schema) ([]compiledField, error) {
	out := make([]compiledField, 0, len(s))
	for _, f := range s {
		cf := compiledField{field: f.Field}
		for i, r := range f.Rules {
			re, err := regexp.Compile("(?i)" + r.Expr)
			if err != nil {
				return nil, fmt.Errorf("field %s rule %d: %w", f.Field, i, err)
			}
			cr := compiledRule{re: re}
			if r.NotFollowedBy != "" {
				cr.reject, err = regexp.Compile("(?i)^(?:" + r.NotFollowedBy + ")")
				if err != nil {
					return nil, fmt.Errorf("field %s rule %d guard: %w", f.Field, i, err)
				}
			}
			cf.rules = append(cf.rules, cr)
		}
		out = append(out, cf)
	}
	return out, nil
}

// find returns the rule's value at the first acceptable match.
func (r compiledRule) find(text string) (string, bool) {
	start := 0
	for start <= len(text) {
		m := r.re.FindStringSubmatchIndex(text[start:])
		if m == nil {
			return "", false
		}
		if r.reject == nil || !r.reject.MatchString(text[start+m[1]:]) {
			return r.value(text[start:], m), true
		}
		_, size := utf8.DecodeRuneInString(text[start+m[0]:])
		if size == 0 {
			return "", false
		}
		start += m[0] + size
	}
	return "", false
}

// value is the last group that took part in the match, or the whole match for a
// pattern without groups.
func (r compiledRule) value(text string, m []int) string {
	for i := len(m)/2 - 1; i > 0; i-- {
		if m[2*i] >= 0 {
			return strings.TrimSpace(text[m[2*i]:m[2*i+1]])
		}
	}
	return strings.TrimSpace(text[m[0]:m[1]])
}

// normalize composes the text, collapses whitespace runs and canonicalizes colons.
func normalize(text string) string {
	text = strings.Join(strings.Fields(norm.NFC.String(text)), " ")
	return colonRE.ReplaceAllString(text, ": ")
}

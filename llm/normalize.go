package llm

import (
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
)

var (
	fenceRe         = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	bareKeyRe       = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
)

// NormalizeStructured validates a payload from a schema-enforcing backend
// and fills defaults for missing optional fields. Tags must be a sequence
// and correspondent must be text or null.
func NormalizeStructured(raw string) (Document, error) {
	raw = stripCodeFences(raw)

	var loose looseDocument
	if err := json.Unmarshal([]byte(raw), &loose); err != nil {
		return EmptyDocument(), fmt.Errorf("%w: %v", ErrInvalidResponseShape, err)
	}
	return loose.toDocument()
}

// NormalizeFreeText extracts the first balanced JSON object from prose and
// parses it, applying a bounded repair pass on malformed input. It never
// fails: unparseable output degrades to the canonical empty document, which
// is a deliberate recovery policy for backends known to be unreliable.
func NormalizeFreeText(text string, logger *log.Logger) Document {
	if logger == nil {
		logger = log.Default()
	}

	span := balancedSpan(stripCodeFences(text))
	if span == "" {
		logger.Printf("warning: no JSON object found in model output")
		return EmptyDocument()
	}

	if doc, err := parseLoose(span); err == nil {
		return doc
	}

	// One repair attempt: strip trailing commas, quote bare keys.
	repaired := repairJSON(span)
	doc, err := parseLoose(repaired)
	if err != nil {
		logger.Printf("warning: model output unparseable after repair: %v", err)
		return EmptyDocument()
	}
	return doc
}

func parseLoose(raw string) (Document, error) {
	var loose looseDocument
	if err := json.Unmarshal([]byte(raw), &loose); err != nil {
		return EmptyDocument(), err
	}
	doc, err := loose.toDocument()
	if err != nil {
		return EmptyDocument(), err
	}
	return doc, nil
}

type looseDocument struct {
	Title         any            `json:"title"`
	Correspondent any            `json:"correspondent"`
	Tags          any            `json:"tags"`
	DocumentType  any            `json:"document_type"`
	DocumentDate  any            `json:"document_date"`
	Language      any            `json:"language"`
	CustomFields  map[string]any `json:"custom_fields"`
}

func (l looseDocument) toDocument() (Document, error) {
	doc := EmptyDocument()

	if l.Tags != nil {
		seq, ok := l.Tags.([]any)
		if !ok {
			return EmptyDocument(), fmt.Errorf("%w: tags is not a sequence", ErrInvalidResponseShape)
		}
		tags := make([]string, 0, len(seq))
		for _, item := range seq {
			tag, ok := item.(string)
			if !ok {
				return EmptyDocument(), fmt.Errorf("%w: tag %v is not text", ErrInvalidResponseShape, item)
			}
			tags = append(tags, tag)
		}
		doc.Tags = tags
	}

	if l.Correspondent != nil {
		name, ok := l.Correspondent.(string)
		if !ok {
			return EmptyDocument(), fmt.Errorf("%w: correspondent is not text", ErrInvalidResponseShape)
		}
		if name != "" {
			doc.Correspondent = &name
		}
	}

	doc.Title = optionalString(l.Title)
	doc.DocumentType = optionalString(l.DocumentType)
	doc.DocumentDate = optionalString(l.DocumentDate)
	doc.Language = optionalString(l.Language)
	doc.CustomFields = l.CustomFields
	return doc, nil
}

func optionalString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// balancedSpan returns the first top-level {...} span, tracking strings so
// braces inside values do not confuse the depth count.
func balancedSpan(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// repairJSON applies the fixed set of syntactic rewrites we trust: trailing
// commas before a closing brace or bracket, and unquoted property names.
// Anything beyond that stays broken on purpose.
func repairJSON(s string) string {
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	return bareKeyRe.ReplaceAllString(s, `$1"$2":`)
}

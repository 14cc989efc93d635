// Package prompt assembles system and user prompts for document analysis.
// Assembly is a pure function of the configuration captured at construction
// and the per-request inputs; nothing here talks to the network.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fabfab/papermind/config"
	"github.com/fabfab/papermind/tokens"
)

// externalDataTokens bounds the appended contextual data section.
const externalDataTokens = 500

const defaultBasePrompt = `You are an assistant that extracts structured metadata from scanned and digital documents.
Read the document carefully and determine its title, correspondent, tags, document type, date and language.
Base every value strictly on the document itself. Do not guess values that are not supported by the text.`

const responseShape = `You must respond with a single JSON object and nothing else. The object has exactly this shape:
{
  "title": "concise document title",
  "correspondent": "sender or issuing party, or null",
  "tags": ["tag", "..."],
  "document_type": "type of document",
  "document_date": "YYYY-MM-DD or null",
  "language": "language of the document"%s
}
Write the title, tags, correspondent and document type in the language of the document itself. Never translate them.`

const playgroundShape = `You must respond with a single JSON object and nothing else, matching this shape:
{
  "title": "concise document title",
  "correspondent": "sender or issuing party, or null",
  "tags": ["tag", "..."],
  "document_type": "type of document",
  "document_date": "YYYY-MM-DD or null",
  "language": "language of the document"
}
Write all values in the language of the document itself.`

// Context carries the per-request inputs the system prompt depends on.
type Context struct {
	ExistingTags           []string
	ExistingCorrespondents []string
	ExistingDocumentTypes  []string

	// CustomPrompt fully replaces the generated instruction and taxonomy
	// sections; the JSON response-shape block is still appended.
	CustomPrompt string

	// ExternalData is optional caller-supplied context. It is serialized,
	// bounded to a small token sub-budget and appended as a labeled section.
	ExternalData any
}

type Assembler struct {
	base                   string
	customFields           []config.CustomField
	useRestrictions        bool
	restrictTags           bool
	restrictCorrespondents bool
	est                    tokens.Estimator
}

func NewAssembler(cfg config.Config, est tokens.Estimator) *Assembler {
	base := strings.TrimSpace(cfg.AI.BasePrompt)
	if base == "" {
		base = defaultBasePrompt
	}
	return &Assembler{
		base:                   base,
		customFields:           cfg.AI.CustomFields,
		useRestrictions:        cfg.AI.UseRestrictions,
		restrictTags:           cfg.AI.RestrictTags,
		restrictCorrespondents: cfg.AI.RestrictCorrespondents,
		est:                    est,
	}
}

// System builds the full system prompt. It always ends with the mandatory
// JSON response-shape instruction.
func (a *Assembler) System(ctx Context) (string, error) {
	var sb strings.Builder

	if ctx.CustomPrompt != "" {
		sb.WriteString(strings.TrimSpace(ctx.CustomPrompt))
	} else {
		sb.WriteString(a.base)
		if a.useRestrictions {
			sb.WriteString("\n\n")
			sb.WriteString(a.restrictionBlock(ctx))
		} else {
			sb.WriteString("\n\n")
			sb.WriteString(existingDataBlock(ctx))
		}
	}

	if ctx.ExternalData != nil {
		section, err := a.externalDataSection(ctx.ExternalData)
		if err != nil {
			return "", err
		}
		sb.WriteString("\n\n")
		sb.WriteString(section)
	}

	sb.WriteString("\n\n")
	sb.WriteString(a.mustHaveBlock())
	return sb.String(), nil
}

// Playground builds the simplified system prompt used for ad-hoc prompt
// experimentation: caller instruction plus the fixed response shape, with no
// taxonomy or restriction context.
func (a *Assembler) Playground(instruction string) string {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		instruction = defaultBasePrompt
	}
	return instruction + "\n\n" + playgroundShape
}

// User wraps the (already truncated) document content into the user prompt.
func (a *Assembler) User(content string) string {
	return "Analyze the following document:\n\n" + content
}

func existingDataBlock(ctx Context) string {
	var sb strings.Builder
	sb.WriteString("Existing tags: ")
	sb.WriteString(joinOrNone(ctx.ExistingTags))
	sb.WriteString("\nExisting correspondents: ")
	sb.WriteString(joinOrNone(ctx.ExistingCorrespondents))
	sb.WriteString("\nExisting document types: ")
	sb.WriteString(joinOrNone(ctx.ExistingDocumentTypes))
	return sb.String()
}

const restrictionTemplate = `Tag selection rules:
%TAG_RULE%
Correspondent selection rules:
%CORRESPONDENT_RULE%`

// restrictionBlock rewrites the rule placeholders according to the
// configured restriction flags.
func (a *Assembler) restrictionBlock(ctx Context) string {
	tagRule := fmt.Sprintf("Prefer tags from this list when they fit: %s. You may create a new tag when none of them applies.", joinOrNone(ctx.ExistingTags))
	if a.restrictTags {
		tagRule = fmt.Sprintf("Choose tags exclusively from this list: %s. Never invent a new tag.", joinOrNone(ctx.ExistingTags))
	}

	correspondentRule := fmt.Sprintf("Prefer correspondents from this list when they fit: %s. You may name a new correspondent when none of them applies.", joinOrNone(ctx.ExistingCorrespondents))
	if a.restrictCorrespondents {
		correspondentRule = fmt.Sprintf("Choose the correspondent exclusively from this list: %s. Never invent a new correspondent.", joinOrNone(ctx.ExistingCorrespondents))
	}

	return strings.NewReplacer(
		"%TAG_RULE%", tagRule,
		"%CORRESPONDENT_RULE%", correspondentRule,
	).Replace(restrictionTemplate)
}

func (a *Assembler) externalDataSection(data any) (string, error) {
	text, ok := data.(string)
	if !ok {
		encoded, err := json.Marshal(data)
		if err != nil {
			return "", fmt.Errorf("encode external data: %w", err)
		}
		text = string(encoded)
	}

	// Oversized data is truncated, not rejected.
	text = tokens.Truncate(text, externalDataTokens, a.est)
	return "Additional context supplied by the caller:\n" + text, nil
}

func (a *Assembler) mustHaveBlock() string {
	customFields := ""
	if len(a.customFields) > 0 {
		customFields = ",\n  \"custom_fields\": " + customFieldsTemplate(a.customFields)
	}
	return fmt.Sprintf(responseShape, customFields)
}

// customFieldsTemplate renders one numbered stub per configured field so the
// model fills every definition it can source from the document.
func customFieldsTemplate(fields []config.CustomField) string {
	var sb strings.Builder
	sb.WriteString("{\n")
	for i, field := range fields {
		hint := "value found in the document, or null"
		if field.DataType != "" {
			hint = fmt.Sprintf("%s value found in the document, or null", field.DataType)
		}
		fmt.Fprintf(&sb, "    %q: {\"field_name\": %q, \"value\": \"<%s>\"}", fmt.Sprintf("%d", i), field.Name, hint)
		if i < len(fields)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("  }")
	return sb.String()
}

func joinOrNone(values []string) string {
	if len(values) == 0 {
		return "(none)"
	}
	return strings.Join(values, ", ")
}

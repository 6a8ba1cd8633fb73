package generation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// promptField describes a single output field of a structured prompt.
type promptField struct {
	Name        string
	Type        string
	Description string
}

// promptSpec defines the sections rendered into a structured prompt.
type promptSpec struct {
	Purpose      string
	Background   string
	OutputFields []promptField
	Constraints  []string
	Rules        []string
	OutputFormat string
}

// promptPreset holds reusable constraints and rules.
type promptPreset struct {
	Constraints []string
	Rules       []string
}

// applyPresets prepends preset constraints/rules to spec.
func applyPresets(spec promptSpec, presets ...promptPreset) promptSpec {
	var merged promptPreset
	for _, p := range presets {
		merged.Constraints = append(merged.Constraints, p.Constraints...)
		merged.Rules = append(merged.Rules, p.Rules...)
	}
	spec.Constraints = append(merged.Constraints, spec.Constraints...)
	spec.Rules = append(merged.Rules, spec.Rules...)
	return spec
}

func presetStrictJSON() promptPreset {
	return promptPreset{
		Constraints: []string{
			"Return strict JSON only.",
			"Match the schema exactly; no extra fields.",
			"No markdown, comments, or trailing commas.",
		},
	}
}

func presetNoInvent() promptPreset {
	return promptPreset{
		Rules: []string{
			"Only quote poems that really exist; never invent lines or attribute a poem to the wrong author.",
		},
	}
}

// render builds the prompt text. language names the reply language.
func (spec promptSpec) render(input any, language string) (string, error) {
	if strings.TrimSpace(spec.Purpose) == "" {
		return "", fmt.Errorf("generation: prompt purpose is empty")
	}
	if len(spec.OutputFields) == 0 {
		return "", fmt.Errorf("generation: prompt output fields are empty")
	}
	inputJSON, err := formatAnyJSON(input)
	if err != nil {
		return "", fmt.Errorf("generation: encode input: %w", err)
	}

	var buf bytes.Buffer
	writeSection(&buf, "PURPOSE", spec.Purpose)
	writeSection(&buf, "BACKGROUND", spec.Background)
	writeSection(&buf, "INPUT", inputJSON)
	writeSection(&buf, "OUTPUT", formatFields(spec.OutputFields))
	writeSection(&buf, "CONSTRAINTS", formatList(spec.Constraints))
	writeSection(&buf, "RULES", formatList(spec.Rules))
	writeSection(&buf, "OUTPUT_FORMAT", spec.OutputFormat)
	writeSection(&buf, "LANGUAGE", language)
	return strings.TrimSpace(buf.String()) + "\n", nil
}

func formatAnyJSON(v any) (string, error) {
	if v == nil {
		return "null", nil
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func formatFields(fields []promptField) string {
	var buf strings.Builder
	for _, f := range fields {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			continue
		}
		if f.Description != "" {
			fmt.Fprintf(&buf, "- %s (%s): %s\n", name, f.Type, f.Description)
		} else {
			fmt.Fprintf(&buf, "- %s (%s)\n", name, f.Type)
		}
	}
	return strings.TrimRight(buf.String(), "\n")
}

func formatList(items []string) string {
	var buf strings.Builder
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		fmt.Fprintf(&buf, "- %s\n", item)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func writeSection(buf *bytes.Buffer, title, body string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	buf.WriteString("[")
	buf.WriteString(title)
	buf.WriteString("]\n")
	buf.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		buf.WriteString("\n")
	}
	buf.WriteString("\n")
}

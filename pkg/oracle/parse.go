package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/menta2k/edge-case-lab/pkg/types"
)

// ErrMalformed is returned when a model reply cannot be turned into a verdict
var ErrMalformed = errors.New("malformed model response")

// wireVerdict uses pointers so absent required fields can be told apart from zero values
type wireVerdict struct {
	Label            *string      `json:"label"`
	Confidence       *float64     `json:"confidence"`
	Reasoning        *string      `json:"reasoning"`
	IsCorrect        *bool        `json:"isCorrect"`
	ConfusingRegions []wireRegion `json:"confusingRegions"`
}

type wireRegion struct {
	X      *float64 `json:"x"`
	Y      *float64 `json:"y"`
	Width  *float64 `json:"width"`
	Height *float64 `json:"height"`
	Reason string   `json:"reason"`
}

// ParseVerdict decodes a model reply. label, confidence, reasoning and
// isCorrect are required; confidence and regions are clamped into 0-100.
// Regions missing a coordinate are dropped.
func ParseVerdict(raw string) (types.Verdict, error) {
	cleaned := sanitizeModelJSON(raw)
	if !strings.HasPrefix(cleaned, "{") {
		return types.Verdict{}, fmt.Errorf("%w: no JSON object found", ErrMalformed)
	}

	var w wireVerdict
	if err := json.Unmarshal([]byte(cleaned), &w); err != nil {
		return types.Verdict{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	var missing []string
	if w.Label == nil || strings.TrimSpace(*w.Label) == "" {
		missing = append(missing, "label")
	}
	if w.Confidence == nil {
		missing = append(missing, "confidence")
	}
	if w.Reasoning == nil {
		missing = append(missing, "reasoning")
	}
	if w.IsCorrect == nil {
		missing = append(missing, "isCorrect")
	}
	if len(missing) > 0 {
		return types.Verdict{}, fmt.Errorf("%w: missing %s", ErrMalformed, strings.Join(missing, ", "))
	}

	v := types.Verdict{
		Label:      strings.TrimSpace(*w.Label),
		Confidence: clampPercent(*w.Confidence),
		Reasoning:  strings.TrimSpace(*w.Reasoning),
		IsCorrect:  *w.IsCorrect,
	}
	for _, r := range w.ConfusingRegions {
		if region, ok := normalizeRegion(r); ok {
			v.ConfusingRegions = append(v.ConfusingRegions, region)
		}
	}
	return v, nil
}

// normalizeRegion clamps the rectangle so it lies inside the 0-100 square
func normalizeRegion(r wireRegion) (types.ConfusingRegion, bool) {
	if r.X == nil || r.Y == nil || r.Width == nil || r.Height == nil {
		return types.ConfusingRegion{}, false
	}
	x := clampPercent(*r.X)
	y := clampPercent(*r.Y)
	return types.ConfusingRegion{
		X:      x,
		Y:      y,
		Width:  clamp(*r.Width, 0, 100-x),
		Height: clamp(*r.Height, 0, 100-y),
		Reason: strings.TrimSpace(r.Reason),
	}, true
}

func clampPercent(v float64) float64 {
	return clamp(v, 0, 100)
}

// clamp ensures a value is within the given bounds; NaN becomes lo
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// sanitizeModelJSON removes code fences, comments, and trailing commas from JSON response
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = dropTrailingCommas(stripComments(raw))

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

// stripComments removes // and /* */ comments that sit outside string literals
func stripComments(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	inString, escaped := false, false
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if inString {
			b.WriteByte(c)
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
		if c == '/' && i+1 < len(raw) {
			switch raw[i+1] {
			case '/':
				for i < len(raw) && raw[i] != '\n' {
					i++
				}
				if i < len(raw) {
					b.WriteByte('\n')
				}
				continue
			case '*':
				end := strings.Index(raw[i+2:], "*/")
				if end < 0 {
					return b.String()
				}
				i += end + 3
				continue
			}
		}
		if c == '"' {
			inString = true
		}
		b.WriteByte(c)
	}
	return b.String()
}

// dropTrailingCommas removes a comma directly before } or ] outside string literals
func dropTrailingCommas(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	inString, escaped := false, false
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(raw) && strings.IndexByte(" \t\r\n", raw[j]) >= 0 {
				j++
			}
			if j < len(raw) && (raw[j] == '}' || raw[j] == ']') {
				continue
			}
		}
		if c == '"' {
			inString = true
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Package grading extracts the structured evaluation a model embeds in
// otherwise free-form assistant text.
package grading

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/lianxi-ai/tutorcore/domain"
)

// Parse locates, repairs and normalizes the grading JSON inside text, binding
// it to the submitted image URLs. It is total: any failure reports absence
// instead of an error.
func Parse(text string, imageURLs []string) (*domain.GradingResult, bool) {
	raw, ok := locateJSON(text)
	if !ok {
		return nil, false
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, false
	}

	result := &domain.GradingResult{
		Summary: getString(obj, "summary"),
	}

	if entries, ok := getList(obj, "imageGradingResult", "image_grading_result"); ok {
		for i, entry := range entries {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			igr := domain.ImageGradingResult{
				ImageURL: getString(m, "imageUrl", "image_url"),
				Steps:    normalizeSteps(m),
			}
			// Positional binding to what the user actually submitted wins
			// over whatever the model echoed back.
			if i < len(imageURLs) {
				igr.ImageURL = imageURLs[i]
			}
			result.ImageResults = append(result.ImageResults, igr)
		}
		return result, true
	}

	// A flat steps array applies to every submitted image.
	if _, ok := getList(obj, "steps"); ok {
		steps := normalizeSteps(obj)
		for _, url := range imageURLs {
			result.ImageResults = append(result.ImageResults, domain.ImageGradingResult{
				ImageURL: url,
				Steps:    steps,
			})
		}
		return result, true
	}

	// An object carrying neither list is not a grading payload, no matter what
	// else it contains.
	return nil, false
}

// locateJSON finds the JSON object in text. A fenced ```json block wins; else
// the first '{' is matched by a string-aware brace scan, appending missing
// closing braces when the stream was truncated.
func locateJSON(text string) (string, bool) {
	if start := strings.Index(text, "```json"); start >= 0 {
		rest := text[start+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			candidate := strings.TrimSpace(rest[:end])
			if candidate != "" {
				return candidate, true
			}
		}
	}

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		}
	}

	// Truncated object: close the outstanding braces and let the parser judge.
	return text[start:] + strings.Repeat("}", depth), true
}

func normalizeSteps(m map[string]any) []domain.GradingStep {
	rawSteps, ok := getList(m, "steps")
	if !ok {
		return []domain.GradingStep{}
	}
	steps := make([]domain.GradingStep, 0, len(rawSteps))
	for i, raw := range rawSteps {
		sm, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		steps = append(steps, normalizeStep(i, sm))
	}
	return steps
}

// normalizeStep applies defensive defaults so a half-filled model object still
// renders: number falls back to position, title to "步骤 N", bbox to zeros,
// and correctness is false unless strictly true.
func normalizeStep(pos int, m map[string]any) domain.GradingStep {
	number := getInt(m, "stepNumber", "step_number")
	if number == 0 {
		number = pos + 1
	}
	title := getString(m, "stepTitle", "step_title")
	if title == "" {
		title = fmt.Sprintf("步骤 %d", number)
	}

	step := domain.GradingStep{
		StepNumber:     number,
		StepTitle:      title,
		IsCorrect:      getBool(m, "isCorrect", "is_correct"),
		Formula:        getString(m, "formula"),
		Text:           getString(m, "text"),
		Comment:        getString(m, "comment"),
		Suggestion:     getString(m, "suggestion"),
		CorrectFormula: getString(m, "correctFormula", "correct_formula"),
	}
	if bm, ok := field(m, "bbox"); ok {
		if bbox, ok := bm.(map[string]any); ok {
			step.BBox = domain.BBox{
				X:      getFloat(bbox, "x"),
				Y:      getFloat(bbox, "y"),
				Width:  getFloat(bbox, "width"),
				Height: getFloat(bbox, "height"),
			}
		}
	}
	return step
}

// Backend and model payloads show up in either naming convention; the lookup
// helpers below read both so the rest of the codebase never has to.

func field(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func getString(m map[string]any, keys ...string) string {
	if v, ok := field(m, keys...); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getBool(m map[string]any, keys ...string) bool {
	if v, ok := field(m, keys...); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

func getInt(m map[string]any, keys ...string) int {
	if v, ok := field(m, keys...); ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case string:
			if parsed, err := strconv.Atoi(n); err == nil {
				return parsed
			}
		}
	}
	return 0
}

func getFloat(m map[string]any, keys ...string) float64 {
	if v, ok := field(m, keys...); ok {
		switch n := v.(type) {
		case float64:
			return n
		case string:
			if parsed, err := strconv.ParseFloat(n, 64); err == nil {
				return parsed
			}
		}
	}
	return 0
}

func getList(m map[string]any, keys ...string) ([]any, bool) {
	if v, ok := field(m, keys...); ok {
		if list, ok := v.([]any); ok {
			return list, true
		}
	}
	return nil, false
}

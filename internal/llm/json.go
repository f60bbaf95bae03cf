package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var scratchpadRe = regexp.MustCompile(`(?s)<scratchpad>.*?</scratchpad>`)
var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*\n?(.*?)\n?```")

// stripScratchpad removes any <scratchpad>...</scratchpad> reasoning block
// the model was instructed to think in before emitting JSON.
func stripScratchpad(text string) string {
	return scratchpadRe.ReplaceAllString(text, "")
}

// stripMarkdownFences unwraps a ```json ... ``` or ``` ... ``` code fence.
func stripMarkdownFences(text string) string {
	if matches := fenceRe.FindStringSubmatch(text); len(matches) > 1 {
		return matches[1]
	}
	return text
}

// extractJSONObject finds the outermost {...} span in text, tolerating
// leading/trailing prose the model adds despite instructions not to.
func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}

// CleanJSON runs the scratchpad-strip / fence-strip / object-extraction
// pipeline used to recover a JSON object from a chat completion that was
// asked to return JSON only but didn't quite.
func CleanJSON(raw string) string {
	t := stripScratchpad(raw)
	t = stripMarkdownFences(t)
	t = extractJSONObject(t)
	return strings.TrimSpace(t)
}

// DecodeJSON cleans raw and unmarshals it into out, reporting a truncated
// snippet of the offending text on failure so the caller's repair retry has
// something concrete to react to.
func DecodeJSON(raw string, out any) error {
	cleaned := CleanJSON(raw)
	if cleaned == "" {
		return fmt.Errorf("llm: no JSON content found in response")
	}
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return fmt.Errorf("llm: invalid JSON: %w (first 500 chars: %s)", err, truncate(cleaned, 500))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

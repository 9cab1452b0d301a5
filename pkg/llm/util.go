package llm

import (
	"strings"
)

// Markers delimiting quoted source material inside a prompt.
const (
	SourceStart = "<start of source text>"
	SourceEnd   = "<end of source text>"
)

// WordWrap wraps text at the specified width.
func WordWrap(text string, width int) string {
	if width <= 0 {
		return text
	}

	var result strings.Builder
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if i > 0 {
			result.WriteString("\n")
		}

		words := strings.Fields(line)
		if len(words) == 0 {
			continue
		}

		currentLineLength := 0
		for j, word := range words {
			if j > 0 {
				if currentLineLength+len(word)+1 > width {
					result.WriteString("\n")
					currentLineLength = 0
				} else {
					result.WriteString(" ")
					currentLineLength++
				}
			}
			result.WriteString(word)
			currentLineLength += len(word)
		}
	}

	return result.String()
}

// TruncateParagraphs shortens each line of a quoted source block to maxLen runes and
// drops empty lines inside it. The rest of the prompt is kept as is. Used for prompt logs.
func TruncateParagraphs(text string, maxLen int) string {
	if text == "" {
		return ""
	}

	lines := strings.Split(text, "\n")
	var result []string
	inSource := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)

		if strings.Contains(lower, SourceStart) {
			inSource = true
			result = append(result, line)
			continue
		}
		if strings.Contains(lower, SourceEnd) {
			inSource = false
			result = append(result, line)
			continue
		}

		if !inSource {
			result = append(result, line)
			continue
		}
		if trimmed == "" {
			continue
		}
		runes := []rune(trimmed)
		if len(runes) > maxLen {
			result = append(result, string(runes[:maxLen])+"...")
		} else {
			result = append(result, trimmed)
		}
	}

	return strings.Join(result, "\n")
}

// CleanJSONBlock removes markdown code blocks from a JSON string if present.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)

	for _, fence := range []string{"```json", "```"} {
		start := strings.Index(text, fence)
		if start == -1 {
			continue
		}
		text = text[start+len(fence):]
		if end := strings.LastIndex(text, "```"); end != -1 {
			text = text[:end]
		}
		return strings.TrimSpace(text)
	}

	return text
}

package llm

import "strings"

// CleanJSONResponse strips markdown code fences and surrounding prose from a
// model reply, returning the first JSON object or array it contains. Models
// frequently wrap structured output in ```json fences or add commentary; the
// caller still has to unmarshal and validate the result.
func CleanJSONResponse(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return s
	}

	// Prose around the payload: take the outermost object or array.
	objStart := strings.Index(s, "{")
	arrStart := strings.Index(s, "[")
	start, closer := objStart, "}"
	if start < 0 || (arrStart >= 0 && arrStart < start) {
		start, closer = arrStart, "]"
	}
	if start < 0 {
		return s
	}
	end := strings.LastIndex(s, closer)
	if end <= start {
		return s
	}
	return s[start : end+1]
}

// Truncate caps s at limit runes, appending an ellipsis when cut. Source
// full text is truncated before summarization to keep prompts bounded.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}

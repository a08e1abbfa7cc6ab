package oracle

import "strings"

// Repair applies best-effort fixes to near-JSON model output: strips markdown
// fences, cuts leading prose before the first brace or bracket, and appends
// missing closers. Callers must re-parse the result; it never validates.
func Repair(raw string) string {
	if raw == "" {
		return "{}"
	}

	cleaned := StripFences(raw)

	if !strings.HasPrefix(cleaned, "{") && !strings.HasPrefix(cleaned, "[") {
		objIdx := strings.Index(cleaned, "{")
		arrIdx := strings.Index(cleaned, "[")
		start := objIdx
		if start == -1 || (arrIdx != -1 && arrIdx < start) {
			start = arrIdx
		}
		if start != -1 {
			cleaned = cleaned[start:]
		}
	}

	if strings.HasPrefix(cleaned, "{") {
		if missing := strings.Count(cleaned, "{") - strings.Count(cleaned, "}"); missing > 0 {
			cleaned += strings.Repeat("}", missing)
		}
	} else if strings.HasPrefix(cleaned, "[") {
		if missing := strings.Count(cleaned, "[") - strings.Count(cleaned, "]"); missing > 0 {
			cleaned += strings.Repeat("]", missing)
		}
	}

	return cleaned
}

// StripFences removes a leading ```json or ``` fence and a trailing ``` fence.
func StripFences(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = cleaned[7:]
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = cleaned[3:]
	}
	if strings.HasSuffix(cleaned, "```") {
		cleaned = cleaned[:len(cleaned)-3]
	}
	return strings.TrimSpace(cleaned)
}

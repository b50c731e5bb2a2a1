package agents

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSON pulls the first balanced JSON object out of free-form model
// output and unmarshals it into dst. Models wrap JSON in prose and code
// fences; a plain json.Unmarshal of the whole response rarely works.
func extractJSON(text string, dst any) error {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return fmt.Errorf("extract json: no object found")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = true
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
					return json.Unmarshal([]byte(text[start:i+1]), dst)
				}
			}
		}
	}

	// Unbalanced scan; last resort is the outermost brace pair.
	end := strings.LastIndexByte(text, '}')
	if end > start {
		return json.Unmarshal([]byte(text[start:end+1]), dst)
	}
	return fmt.Errorf("extract json: no balanced object found")
}

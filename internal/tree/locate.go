package tree

import "strings"

// Span is the object text of one node inside a serialized tree, with its
// byte offsets. Text == source[Start:End].
type Span struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Locate finds the object whose "id" field equals id in text without
// parsing it. It looks for the literal `"id":"<id>"`, accepts a hit only
// when the next byte is ',' or '}' (so "A1" does not match "A1.1" or
// "A10"), walks back to the nearest '{' and then balances braces forward,
// ignoring braces inside string literals.
//
// The returned span covers the whole object including any children array.
// When the object never balances the span is just the opening brace.
func Locate(text, id string) (Span, bool) {
	if text == "" || id == "" {
		return Span{}, false
	}
	pattern := `"id":"` + id + `"`

	from := 0
	for {
		rel := strings.Index(text[from:], pattern)
		if rel < 0 {
			return Span{}, false
		}
		at := from + rel

		next := at + len(pattern)
		if next < len(text) && (text[next] == ',' || text[next] == '}') {
			start := strings.LastIndexByte(text[:at], '{')
			if start < 0 {
				return Span{}, false
			}
			end := objectEnd(text, start)
			return Span{Text: text[start:end], Start: start, End: end}, true
		}

		// Resume one byte past the match start so overlapping candidates
		// are not skipped.
		from = at + 1
	}
}

// objectEnd returns one past the brace that closes the object opened at
// text[start], or start+1 when it is never closed.
func objectEnd(text string, start int) int {
	depth := 1
	inString := false
	for i := start + 1; i < len(text); i++ {
		c := text[i]
		if c == '"' && text[i-1] != '\\' {
			inString = !inString
		}
		if inString {
			continue
		}
		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return start + 1
}

package tree

import (
	"strings"
	"testing"
)

const sampleTree = `{"metadata":{"title":"Go","createdAt":"2025-01-01"},"root":{"id":"root","label":"Go","type":"pot","level":0,"children":[{"id":"A1","label":"Basics","type":"trunk","level":1,"children":[{"id":"A1.1","label":"Syntax {braces}","type":"branch","level":2},{"id":"A10","label":"Types","type":"branch","level":2}]}]}}`

func TestLocateNotFound(t *testing.T) {
	tests := []struct {
		name string
		text string
		id   string
	}{
		{"empty text", "", "A1"},
		{"empty id", sampleTree, ""},
		{"absent id", sampleTree, "B7"},
		{"prefix only", `{"id":"A1.1","label":"x"}`, "A1"},
		{"longer id only", `{"id":"A10","label":"x"}`, "A1"},
		{"id as label value", `{"id":"x","label":"A1"}`, "A1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if span, ok := Locate(tt.text, tt.id); ok {
				t.Errorf("Locate(%q) = %+v, want not found", tt.id, span)
			}
		})
	}
}

func TestLocateExactMatchAmongPrefixes(t *testing.T) {
	// "A1.1" appears before "A1" in the first text and after it in the second.
	texts := []string{
		`{"root":{"id":"A1.1","label":"first","children":[{"id":"A1","label":"target"}]}}`,
		`{"root":{"id":"A1","label":"target","children":[{"id":"A1.1","label":"second"}]}}`,
	}
	for _, text := range texts {
		span, ok := Locate(text, "A1")
		if !ok {
			t.Fatalf("Locate(A1) in %s: not found", text)
		}
		if !strings.HasPrefix(span.Text, `{"id":"A1",`) {
			t.Errorf("span = %q, want it to start at the A1 object", span.Text)
		}
		if text[span.Start:span.End] != span.Text {
			t.Errorf("span offsets [%d:%d] do not match text", span.Start, span.End)
		}
	}
}

func TestLocateStartsAtEnclosingBrace(t *testing.T) {
	span, ok := Locate(sampleTree, "A10")
	if !ok {
		t.Fatal("A10 not found")
	}
	want := `{"id":"A10","label":"Types","type":"branch","level":2}`
	if span.Text != want {
		t.Errorf("span = %q, want %q", span.Text, want)
	}
	if sampleTree[span.Start] != '{' {
		t.Errorf("span starts with %q, want '{'", sampleTree[span.Start])
	}
}

func TestLocateCapturesSubtree(t *testing.T) {
	span, ok := Locate(sampleTree, "A1")
	if !ok {
		t.Fatal("A1 not found")
	}
	if !strings.Contains(span.Text, `"id":"A1.1"`) || !strings.Contains(span.Text, `"id":"A10"`) {
		t.Errorf("span %q should include the children array", span.Text)
	}
	if !strings.HasSuffix(span.Text, `]}`) {
		t.Errorf("span %q should end at the A1 closing brace", span.Text)
	}
}

func TestLocateIgnoresBracesInStrings(t *testing.T) {
	span, ok := Locate(sampleTree, "A1.1")
	if !ok {
		t.Fatal("A1.1 not found")
	}
	want := `{"id":"A1.1","label":"Syntax {braces}","type":"branch","level":2}`
	if span.Text != want {
		t.Errorf("span = %q, want %q", span.Text, want)
	}
}

func TestLocateEscapedQuote(t *testing.T) {
	text := `{"id":"q","label":"say \"}\" twice"}`
	span, ok := Locate(text, "q")
	if !ok {
		t.Fatal("q not found")
	}
	if span.Text != text {
		t.Errorf("span = %q, want whole object", span.Text)
	}
}

func TestLocateAcceptsClosingBrace(t *testing.T) {
	text := `[{"label":"x","id":"last"}]`
	span, ok := Locate(text, "last")
	if !ok {
		t.Fatal("last not found")
	}
	if span.Text != `{"label":"x","id":"last"}` {
		t.Errorf("span = %q", span.Text)
	}
}

func TestLocateUnbalanced(t *testing.T) {
	text := `{"root":{"id":"cut","label":"trunc`
	span, ok := Locate(text, "cut")
	if !ok {
		t.Fatal("cut not found")
	}
	if span.Text != "{" || span.End != span.Start+1 {
		t.Errorf("span = %+v, want just the opening brace", span)
	}
}

func TestLocateDuplicateReturnsFirst(t *testing.T) {
	text := `{"a":{"id":"d","n":1},"b":{"id":"d","n":2}}`
	span, ok := Locate(text, "d")
	if !ok {
		t.Fatal("d not found")
	}
	if span.Text != `{"id":"d","n":1}` {
		t.Errorf("span = %q, want first occurrence", span.Text)
	}
}

func TestLocateLiteralMetacharacters(t *testing.T) {
	text := `{"id":"a.*b","label":"x"}`
	if _, ok := Locate(text, "a.*b"); !ok {
		t.Error("literal id with regex metacharacters not found")
	}
	if _, ok := Locate(`{"id":"axxb","label":"x"}`, "a.*b"); ok {
		t.Error("id was interpreted as a pattern")
	}
}

func TestLocateEncodedDocument(t *testing.T) {
	doc := sampleDocument()
	data, err := Encode(doc)
	if err != nil {
		t.Fatal(err)
	}
	Walk(doc.Root, func(n *Node, _ int) bool {
		span, ok := Locate(string(data), n.ID)
		if !ok {
			t.Errorf("node %q not located in encoded document", n.ID)
			return true
		}
		if !strings.HasPrefix(span.Text, `{"id":"`+n.ID+`"`) {
			t.Errorf("span for %q = %q", n.ID, span.Text)
		}
		return true
	})
}

package render

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// HighlightStyle is the chroma style behind the token classes.
const HighlightStyle = "github"

var tokenFormatter = chromahtml.New(
	chromahtml.WithClasses(true),
	chromahtml.PreventSurroundingPre(true),
)

// highlighted holds one text tokenized line by line.
type highlighted struct {
	html  []string
	plain []string
}

// highlight tokenizes text with the lexer registered for lang. It returns
// nil for plain text and for languages chroma does not know.
func highlight(text, lang string) *highlighted {
	if text == "" || lang == "plaintext" {
		return nil
	}
	lexer := lexers.Get(lang)
	if lexer == nil {
		return nil
	}
	it, err := chroma.Coalesce(lexer).Tokenise(nil, text)
	if err != nil {
		return nil
	}

	style := styles.Get(HighlightStyle)
	h := &highlighted{}
	for _, line := range chroma.SplitTokensIntoLines(it.Tokens()) {
		if n := len(line); n > 0 {
			line[n-1].Value = strings.TrimSuffix(line[n-1].Value, "\n")
		}

		var plain, markup strings.Builder
		for _, tok := range line {
			plain.WriteString(tok.Value)
		}
		if err := tokenFormatter.Format(&markup, style, chroma.Literator(line...)); err != nil {
			return nil
		}
		h.plain = append(h.plain, plain.String())
		h.html = append(h.html, markup.String())
	}
	return h
}

// line returns the markup of 1-based line n. ok is false when the tokens of
// that line do not spell want, so callers fall back to escaped text.
func (h *highlighted) line(n int, want string) (string, bool) {
	if h == nil || n < 1 || n > len(h.html) || h.plain[n-1] != want {
		return "", false
	}
	return h.html[n-1], true
}

// highlightCSS returns the style sheet for the token classes.
func highlightCSS() string {
	var b strings.Builder
	if err := tokenFormatter.WriteCSS(&b, styles.Get(HighlightStyle)); err != nil {
		return ""
	}
	return b.String()
}

package report

import (
	"fmt"
	"io"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
)

// Highlighter colors trace output for a terminal. The zero value and a nil
// Highlighter write plain text.
type Highlighter struct {
	style     *chroma.Style
	formatter chroma.Formatter
}

func NewHighlighter(enabled bool, pref ThemePreference) *Highlighter {
	if !enabled {
		return &Highlighter{}
	}
	return &Highlighter{style: styleForPreference(pref), formatter: formatters.TTY256}
}

func (h *Highlighter) Enabled() bool {
	return h != nil && h.style != nil && h.formatter != nil
}

// Write renders text with the lexer registered under lexerName.
func (h *Highlighter) Write(w io.Writer, lexerName, text string) error {
	if !h.Enabled() {
		_, err := io.WriteString(w, text)
		return err
	}
	lexer := lexers.Get(lexerName)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	iterator, err := chroma.Coalesce(lexer).Tokenise(nil, text)
	if err != nil {
		return fmt.Errorf("tokenise %s: %w", lexerName, err)
	}
	return h.formatter.Format(w, h.style, iterator)
}

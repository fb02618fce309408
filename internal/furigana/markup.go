// Package furigana turns raw Japanese lyrics into HTML with ruby reading
// glosses and appends source attribution.
package furigana

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// LineBreak separates lyric lines in annotated markup.
const LineBreak = "<br/>"

// SimpleFormat renders raw text without readings: each line is trimmed and
// lines are joined with LineBreak.
func SimpleFormat(raw string) string {
	lines := strings.Split(raw, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.Join(lines, LineBreak)
}

// CountRuby returns the number of <ruby> elements in markup.
func CountRuby(markup string) int {
	z := html.NewTokenizer(strings.NewReader(markup))
	n := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return n
		case html.StartTagToken:
			if z.Token().DataAtom == atom.Ruby {
				n++
			}
		}
	}
}

// HasKanji reports whether text contains a CJK unified ideograph.
func HasKanji(text string) bool {
	for _, r := range text {
		if r >= 0x4E00 && r <= 0x9FAF {
			return true
		}
	}
	return false
}

// PlainText renders markup for a terminal: ruby readings follow their base
// text in parentheses and block elements become line breaks.
func PlainText(markup string) string {
	z := html.NewTokenizer(strings.NewReader(markup))
	var b, reading strings.Builder
	inRT, inRP := false, false

	newline := func() {
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
	}

	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.TextToken:
			switch {
			case inRP:
			case inRT:
				reading.Write(z.Text())
			default:
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			switch z.Token().DataAtom {
			case atom.Br:
				b.WriteByte('\n')
			case atom.Rt:
				inRT = true
			case atom.Rp:
				inRP = true
			case atom.Div, atom.P:
				newline()
			}
		case html.EndTagToken:
			switch z.Token().DataAtom {
			case atom.Rt:
				inRT = false
				if reading.Len() > 0 {
					b.WriteString("(" + reading.String() + ")")
					reading.Reset()
				}
			case atom.Rp:
				inRP = false
			case atom.Div, atom.P:
				newline()
			}
		}
	}
}

package tui

import (
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

// truncateText shortens text to width terminal cells, marking the cut with
// an ellipsis.
func truncateText(text string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(text) <= width {
		return text
	}
	if width <= 3 {
		return runewidth.Truncate(text, width, "")
	}
	return runewidth.Truncate(text, width, "...")
}

func formatDetail(label, text string, width int) string {
	if width <= len(label) {
		return label + text
	}
	wrapped := wrapText(text, width-len(label))
	lines := strings.Split(wrapped, "\n")
	if len(lines) == 0 {
		return label
	}

	var b strings.Builder
	for i, line := range lines {
		if i == 0 {
			b.WriteString(label)
			b.WriteString(line)
			continue
		}
		b.WriteString("\n")
		b.WriteString(strings.Repeat(" ", len(label)))
		b.WriteString(line)
	}
	return b.String()
}

// wrapText breaks text on spaces. Paths without spaces are split hard at
// width so they never overflow a panel.
func wrapText(text string, width int) string {
	if width <= 0 {
		return text
	}
	cleaned := strings.ReplaceAll(text, "\n", " ")
	words := strings.Fields(cleaned)
	if len(words) == 0 {
		return ""
	}

	var lines []string
	var line strings.Builder
	lineWidth := 0
	for _, word := range words {
		for runewidth.StringWidth(word) > width {
			if lineWidth > 0 {
				lines = append(lines, line.String())
				line.Reset()
				lineWidth = 0
			}
			head := runewidth.Truncate(word, width, "")
			if head == "" {
				// A single wide rune does not fit; emit it alone.
				_, size := utf8.DecodeRuneInString(word)
				head = word[:size]
			}
			lines = append(lines, head)
			word = word[len(head):]
		}
		w := runewidth.StringWidth(word)
		if w == 0 {
			continue
		}
		if lineWidth == 0 {
			line.WriteString(word)
			lineWidth = w
			continue
		}
		if lineWidth+1+w > width {
			lines = append(lines, line.String())
			line.Reset()
			line.WriteString(word)
			lineWidth = w
			continue
		}
		line.WriteByte(' ')
		line.WriteString(word)
		lineWidth += 1 + w
	}
	if lineWidth > 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

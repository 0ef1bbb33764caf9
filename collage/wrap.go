package collage

import (
	"strings"

	"golang.org/x/image/font"

	"booth/util"
)

// Wrap breaks text into lines no wider than maxWidth pixels when drawn with
// face. Words are packed greedily; a word that is too wide on its own is
// split between characters. A single character wider than maxWidth still
// gets a line of its own.
func Wrap(face font.Face, text string, maxWidth int) []string {
	fits := func(s string) bool {
		return util.MeasureString(face, s) <= maxWidth
	}

	var lines []string
	line := ""
	for _, word := range strings.Fields(text) {
		if !fits(word) {
			if line != "" {
				lines = append(lines, line)
			}
			chunk := ""
			for _, r := range word {
				if chunk != "" && !fits(chunk+string(r)) {
					lines = append(lines, chunk)
					chunk = ""
				}
				chunk += string(r)
			}
			line = chunk
			continue
		}

		candidate := word
		if line != "" {
			candidate = line + " " + word
		}
		if fits(candidate) {
			line = candidate
		} else {
			lines = append(lines, line)
			line = word
		}
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}

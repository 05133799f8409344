package extract

import (
	"regexp"
	"strings"
)

// OCR output tends to carry full-width glyphs and look-alike characters.
// The table maps the known confusions to their intended form; anything
// not listed passes through unchanged.
var confusionTable = map[rune]rune{
	'０': '0', '１': '1', '２': '2', '３': '3', '４': '4',
	'５': '5', '６': '6', '７': '7', '８': '8', '９': '9',
	'：': ':', '／': '/', '－': '-', '（': '(', '）': ')',
	'，': ',', '．': '.', '～': '~',
	'〇': '0',
	'–': '-', '—': '-',
	'“': '"', '”': '"', '‘': '\'', '’': '\'',
}

var innerSpaceRegex = regexp.MustCompile(`[ \t\x{3000}]+`)

// Normalize cleans raw OCR text: maps confusion characters, collapses
// horizontal whitespace runs to single spaces, trims each line and drops
// empty lines. Line structure is preserved because downstream title
// selection scans lines top to bottom.
//
// Normalize is idempotent and never fails; empty input yields "".
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	mapped := strings.Map(func(r rune) rune {
		if repl, ok := confusionTable[r]; ok {
			return repl
		}
		return r
	}, raw)

	var lines []string
	for _, line := range strings.Split(mapped, "\n") {
		line = innerSpaceRegex.ReplaceAllString(line, " ")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}

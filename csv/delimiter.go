package csv

import (
	"fmt"
	"slices"
	"unicode/utf8"
)

const DefaultDelimiter = ','

var SupportedDelimiters = []rune{',', ';', '\t', '|'}

// Names accepted in place of the literal characters, which are awkward in URLs.
var namedDelimiters = map[string]rune{
	"comma":     ',',
	"semicolon": ';',
	"tab":       '\t',
	"pipe":      '|',
}

// Parses a delimiter as given in a download request. A blank string gives the default delimiter.
func ParseDelimiter(input string) (delimiter rune, err error) {
	if input == "" {
		return DefaultDelimiter, nil
	}
	if delimiter, ok := namedDelimiters[input]; ok {
		return delimiter, nil
	}

	delimiter, size := utf8.DecodeRuneInString(input)
	if size != len(input) || !slices.Contains(SupportedDelimiters, delimiter) {
		return 0, fmt.Errorf(
			"unsupported CSV delimiter '%s' (must be one of %q)", input, SupportedDelimiters,
		)
	}

	return delimiter, nil
}

// Package language picks the synthesis language for a piece of text.
package language

import "unicode"

// Code is a language code understood by the synthesis backends.
type Code string

const (
	Russian Code = "ru"
	English Code = "en"

	Default = English
)

// cyrillic covers the Cyrillic (U+0400–U+04FF) and Cyrillic Supplement
// (U+0500–U+052F) blocks.
var cyrillic = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x0400, Hi: 0x052F, Stride: 1},
	},
}

// Detect returns Russian when text contains at least one Cyrillic character
// and Default otherwise. It is a script check, not language identification.
func Detect(text string) Code {
	for _, r := range text {
		if unicode.Is(cyrillic, r) {
			return Russian
		}
	}
	return Default
}

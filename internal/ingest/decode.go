package ingest

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Encoding names reported by Decode.
const (
	EncodingUTF8        = "utf-8"
	EncodingWindows1251 = "windows-1251"
)

// Decode turns raw quiz bytes into text. Valid UTF-8 is used as is;
// anything else is read as Windows-1251 with undecodable bytes dropped.
// Decode never fails.
func Decode(raw []byte) (text, encoding string) {
	if utf8.Valid(raw) {
		return strings.TrimPrefix(string(raw), "\ufeff"), EncodingUTF8
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, c := range raw {
		r := charmap.Windows1251.DecodeByte(c)
		if undecodable(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String(), EncodingWindows1251
}

// undecodable reports whether r stands in for a byte Windows-1251 leaves
// undefined. Depending on the table that is U+FFFD or a C1 control.
func undecodable(r rune) bool {
	return r == utf8.RuneError || (r >= 0x80 && r <= 0x9f)
}

package common

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// DecodeSubtitleText converts a raw subtitle payload to a UTF-8 string.
// Providers serve plain text with no declared charset; anything that is not
// valid UTF-8 is treated as Windows-1252, the de-facto encoding of legacy
// subtitle files.
func DecodeSubtitleText(payload []byte) string {
	if utf8.Valid(payload) {
		return string(payload)
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(payload)
	if err != nil {
		return string(payload)
	}
	return string(decoded)
}

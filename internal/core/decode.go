package core

// decode.go turns raw upload bodies into text.
//
// Uploads must be UTF-8. A leading UTF-8 byte order mark (common in files
// saved by Excel on Windows) is dropped. UTF-16 and UTF-32 input is
// rejected with a DecodeFailed instead of being handed to a parser, which
// would otherwise report confusing syntax errors.

import (
	"bytes"
	"unicode/utf8"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
	bomUTF32LE = []byte{0xFF, 0xFE, 0x00, 0x00}
	bomUTF32BE = []byte{0x00, 0x00, 0xFE, 0xFF}
)

// DecodeData returns data as a UTF-8 string.
func DecodeData(data []byte) (string, error) {
	switch {
	case bytes.HasPrefix(data, bomUTF32LE), bytes.HasPrefix(data, bomUTF32BE):
		return "", &DecodeFailed{Offset: 0, Reason: "UTF-32 byte order mark"}
	case bytes.HasPrefix(data, bomUTF16LE), bytes.HasPrefix(data, bomUTF16BE):
		return "", &DecodeFailed{Offset: 0, Reason: "UTF-16 byte order mark"}
	}

	offset := 0
	if bytes.HasPrefix(data, bomUTF8) {
		data = data[len(bomUTF8):]
		offset = len(bomUTF8)
	}

	// UTF-16 without a BOM is valid UTF-8 byte-wise but full of NULs.
	if i := bytes.IndexByte(data, 0); i >= 0 {
		return "", &DecodeFailed{Offset: offset + i, Reason: "NUL byte"}
	}

	if !utf8.Valid(data) {
		return "", &DecodeFailed{Offset: offset + invalidOffset(data), Reason: "invalid UTF-8 sequence"}
	}

	return string(data), nil
}

// invalidOffset returns the index of the first invalid UTF-8 sequence.
func invalidOffset(data []byte) int {
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return len(data)
}

package form

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/text/encoding/unicode"
)

var utf16BE = unicode.UTF16(unicode.BigEndian, unicode.UseBOM)

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`(`, `\(`,
	`)`, `\)`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// encodeText turns s into a PDF text string object: an escaped literal for
// plain ASCII, a UTF-16BE hex string with byte order mark otherwise.
func encodeText(s string) (types.Object, error) {
	if isPlainASCII(s) {
		return types.StringLiteral(literalEscaper.Replace(s)), nil
	}

	b, err := utf16BE.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("failed to encode %q as UTF-16: %w", s, err)
	}
	return types.HexLiteral(hex.EncodeToString(b)), nil
}

func isPlainASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\n' || c == '\r' || c == '\t' {
			continue
		}
		if c < 0x20 || c > 0x7E {
			return false
		}
	}
	return true
}

// isOn reports whether a value should switch a button on.
func isOn(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "off", "false", "no", "0":
		return false
	default:
		return true
	}
}

package extract

import (
	"regexp"
	"strings"
	"unicode/utf16"
)

// pdfInfoPatterns find Info dictionary entries by scanning the raw file.
// Both literal (...) and hex <...> strings are matched.
var pdfInfoPatterns = func() map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp, len(pdfInfoKeys))
	for _, k := range pdfInfoKeys {
		patterns[k.name] = regexp.MustCompile(`/` + k.name + `\s*\(((?:\\.|[^\\)])*)\)|/` + k.name + `\s*<([0-9A-Fa-f\s]+)>`)
	}
	return patterns
}()

var pdfPageRe = regexp.MustCompile(`/Type\s*/Page\b`)

// scanPDFInfo extracts Info dictionary strings without parsing the object
// graph. It is the fallback for files the PDF reader rejects.
func scanPDFInfo(data []byte) map[string]string {
	info := make(map[string]string)
	content := string(data)
	for name, re := range pdfInfoPatterns {
		m := re.FindStringSubmatch(content)
		if m == nil {
			continue
		}
		switch {
		case m[1] != "":
			info[name] = decodePDFLiteral(m[1])
		case m[2] != "":
			info[name] = decodePDFHex(m[2])
		}
	}
	return info
}

// countPDFPages counts page objects. "/Type /Pages" tree nodes are not
// matched because of the word boundary.
func countPDFPages(data []byte) int {
	return len(pdfPageRe.FindAllIndex(data, -1))
}

// decodePDFLiteral resolves the escapes of a literal string.
func decodePDFLiteral(s string) string {
	r := strings.NewReplacer(
		`\n`, "\n",
		`\r`, "\r",
		`\t`, "\t",
		`\(`, "(",
		`\)`, ")",
		`\\`, `\`,
	)
	s = r.Replace(s)
	if strings.HasPrefix(s, "\xfe\xff") {
		return decodeUTF16BE([]byte(s[2:]))
	}
	return strings.TrimSpace(s)
}

// decodePDFHex decodes a hex string. A FEFF prefix marks UTF-16BE text;
// anything else is taken byte by byte.
func decodePDFHex(h string) string {
	h = strings.Join(strings.Fields(h), "")
	if len(h)%2 == 1 {
		h += "0"
	}
	b := make([]byte, 0, len(h)/2)
	for i := 0; i+1 < len(h); i += 2 {
		b = append(b, hexNibble(h[i])<<4|hexNibble(h[i+1]))
	}
	if len(b) >= 2 && b[0] == 0xfe && b[1] == 0xff {
		return decodeUTF16BE(b[2:])
	}
	return strings.TrimSpace(string(b))
}

func hexNibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return 0
	}
}

func decodeUTF16BE(b []byte) string {
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		if u := uint16(b[i])<<8 | uint16(b[i+1]); u != 0 {
			units = append(units, u)
		}
	}
	return strings.TrimSpace(string(utf16.Decode(units)))
}

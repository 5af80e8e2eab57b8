package normalize

import (
	"bytes"
	"encoding/base64"
	"io"
	"regexp"
	"strings"

	"github.com/emersion/go-message/charset"
)

var encodedWord = regexp.MustCompile(`=\?([^?\s]+)\?([bBqQ])\?([^?\s]*)\?=`)

// decodeWords decodes RFC 2047 encoded words in a header value. Words that
// cannot be decoded are dropped, bytes invalid in the declared charset are
// ignored, and whitespace between adjacent encoded words is removed.
func decodeWords(s string) string {
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "=?") {
		return strings.ToValidUTF8(s, "")
	}

	var (
		out      strings.Builder
		pos      int
		prevWord bool
	)
	for _, m := range encodedWord.FindAllStringSubmatchIndex(s, -1) {
		between := s[pos:m[0]]
		if !(prevWord && strings.TrimSpace(between) == "") {
			out.WriteString(strings.ToValidUTF8(between, ""))
		}
		if text, ok := decodeWord(s[m[2]:m[3]], s[m[4]:m[5]], s[m[6]:m[7]]); ok {
			out.WriteString(text)
		}
		pos = m[1]
		prevWord = true
	}
	out.WriteString(strings.ToValidUTF8(s[pos:], ""))

	return out.String()
}

func decodeWord(cs, enc, text string) (string, bool) {
	// RFC 2231 language suffix, e.g. "utf-8*en".
	if i := strings.IndexByte(cs, '*'); i >= 0 {
		cs = cs[:i]
	}

	var raw []byte
	switch strings.ToLower(enc) {
	case "b":
		b, err := decodeBase64(text)
		if err != nil {
			return "", false
		}
		raw = b
	case "q":
		raw = decodeQ(text)
	default:
		return "", false
	}

	return toUTF8(cs, raw), true
}

func decodeBase64(s string) ([]byte, error) {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

// decodeQ decodes the "Q" encoding. Malformed escapes are kept literally.
func decodeQ(s string) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_':
			out = append(out, ' ')
		case c == '=' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]):
			out = append(out, unhex(s[i+1])<<4|unhex(s[i+2]))
			i += 2
		default:
			out = append(out, c)
		}
	}
	return out
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// toUTF8 converts b from the named charset, falling back to treating it as
// UTF-8. Invalid sequences are dropped.
func toUTF8(cs string, b []byte) string {
	switch strings.ToLower(cs) {
	case "utf-8", "utf8", "us-ascii", "ascii", "":
		return strings.ToValidUTF8(string(b), "")
	}

	r, err := charset.Reader(cs, bytes.NewReader(b))
	if err != nil {
		return strings.ToValidUTF8(string(b), "")
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return strings.ToValidUTF8(string(b), "")
	}
	return strings.ToValidUTF8(string(decoded), "")
}

package normalize

import (
	"bytes"
	"mime"
	"net/mail"
	"net/textproto"
	"strings"
	"time"

	"github.com/emersion/go-message/charset"
)

// header is a parsed header block. Values keep their file order.
type header mail.Header

func (h header) all(key string) []string {
	return mail.Header(h)[key]
}

// first returns the first occurrence of key, or "".
func (h header) first(key string) string {
	if values := h.all(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

// last returns the final occurrence of key, or "".
func (h header) last(key string) string {
	values := h.all(key)
	if len(values) == 0 {
		return ""
	}
	return values[len(values)-1]
}

// splitMessage separates the header block from the body. The header ends at
// the first blank line or at the first line that cannot be a header field;
// such a line starts the body. A leading mbox "From " line is dropped.
func splitMessage(raw []byte) (head [][]byte, body []byte) {
	rest := raw
	first := true
	for len(rest) > 0 {
		line, next := cutLine(rest)
		trimmed := bytes.TrimRight(line, "\r\n")

		if first && bytes.HasPrefix(trimmed, []byte("From ")) {
			first = false
			rest = next
			continue
		}
		first = false

		if len(trimmed) == 0 {
			return head, next
		}

		if trimmed[0] == ' ' || trimmed[0] == '\t' {
			if len(head) == 0 {
				return head, rest
			}
			head[len(head)-1] = append(head[len(head)-1], ' ')
			head[len(head)-1] = append(head[len(head)-1], bytes.TrimSpace(trimmed)...)
			rest = next
			continue
		}

		if !isFieldLine(trimmed) {
			return head, rest
		}

		head = append(head, append([]byte(nil), trimmed...))
		rest = next
	}
	return head, nil
}

func cutLine(b []byte) (line, rest []byte) {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		return b[:i+1], b[i+1:]
	}
	return b, nil
}

// isFieldLine reports whether line looks like "Name: value".
func isFieldLine(line []byte) bool {
	colon := bytes.IndexByte(line, ':')
	if colon <= 0 {
		return false
	}
	for _, c := range line[:colon] {
		if c < 33 || c > 126 {
			return false
		}
	}
	return true
}

// joinMessage rebuilds a message from cleaned header lines and a body.
func joinMessage(head [][]byte, body []byte) []byte {
	var buf bytes.Buffer
	for _, line := range head {
		buf.Write(line)
		buf.WriteString("\r\n")
	}
	buf.WriteString("\r\n")
	buf.Write(body)
	return buf.Bytes()
}

func parseHeader(head [][]byte) header {
	h := header{}
	for _, line := range head {
		colon := bytes.IndexByte(line, ':')
		key := textproto.CanonicalMIMEHeaderKey(string(line[:colon]))
		value := strings.TrimSpace(string(line[colon+1:]))
		h[key] = append(h[key], value)
	}
	return h
}

var addressParser = &mail.AddressParser{
	WordDecoder: &mime.WordDecoder{CharsetReader: charset.Reader},
}

// parseAddressList parses every occurrence of an address header, in order.
// Unparsable lists fall back to a lenient comma split.
func parseAddressList(values []string) []Address {
	out := []Address{}
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		list, err := addressParser.ParseList(v)
		if err != nil {
			out = append(out, lenientAddresses(v)...)
			continue
		}
		for _, a := range list {
			out = append(out, Address{Name: a.Name, Email: a.Address})
		}
	}
	return out
}

func lenientAddresses(v string) []Address {
	var out []Address
	for _, piece := range splitAddresses(v) {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		if a, err := addressParser.Parse(piece); err == nil {
			out = append(out, Address{Name: a.Name, Email: a.Address})
			continue
		}
		out = append(out, lenientAddress(piece))
	}
	return out
}

func lenientAddress(s string) Address {
	if lt := strings.LastIndex(s, "<"); lt >= 0 {
		if gt := strings.Index(s[lt:], ">"); gt > 0 {
			name := strings.Trim(strings.TrimSpace(s[:lt]), `"`)
			return Address{Name: decodeWords(name), Email: strings.TrimSpace(s[lt+1 : lt+gt])}
		}
	}
	return Address{Email: strings.Trim(s, `"<> `)}
}

// splitAddresses splits on commas outside quotes and angle brackets.
func splitAddresses(s string) []string {
	var (
		parts   []string
		start   int
		quoted  bool
		angle   int
		escaped bool
	)
	for i, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\' && quoted:
			escaped = true
		case r == '"':
			quoted = !quoted
		case r == '<' && !quoted:
			angle++
		case r == '>' && !quoted && angle > 0:
			angle--
		case r == ',' && !quoted && angle == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

var dateLayouts = []string{
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 2 Jan 06 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05",
}

// formatTimestamp renders the Date header's wall-clock fields with a "Z"
// suffix. The zone offset is not applied.
func formatTimestamp(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}

	t, err := mail.ParseDate(value)
	if err != nil {
		cleaned := stripComment(value)
		for _, layout := range dateLayouts {
			if t, err = time.Parse(layout, cleaned); err == nil {
				break
			}
		}
		if err != nil {
			return ""
		}
	}

	return t.Format("2006-01-02T15:04:05") + "Z"
}

// stripComment removes a trailing "(...)" zone comment.
func stripComment(s string) string {
	if i := strings.Index(s, "("); i >= 0 {
		s = s[:i]
	}
	return strings.Join(strings.Fields(s), " ")
}

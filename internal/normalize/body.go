package normalize

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/textproto"
)

// maxDepth bounds multipart nesting; deeper parts are skipped.
const maxDepth = 64

// truncated reports whether err only means the input ended early, as when a
// multipart body lacks its closing boundary. The bytes read so far are kept.
func truncated(err error) bool {
	return errors.Is(err, io.ErrUnexpectedEOF)
}

// extractBody parses raw and fills body from its parts. A multipart message
// whose parts cannot be found is read as a single part.
func extractBody(raw []byte, body *Body, limits Limits) {
	br := bufio.NewReader(bytes.NewReader(raw))
	th, err := textproto.ReadHeader(br)
	if err != nil {
		return
	}
	h := message.Header{Header: th}

	var r io.Reader = br
	if ct, params := mediaType(h); strings.HasPrefix(ct, "multipart/") {
		data, err := io.ReadAll(br)
		if err != nil {
			return
		}
		if walk(textproto.NewMultipartReader(bytes.NewReader(data), params["boundary"]), body, limits, 1) {
			return
		}
		r = bytes.NewReader(data)
	}

	text, ok := readText(decoded(h, r), limits.MaxBodyBytes)
	if !ok || text == "" {
		return
	}
	if contentType(h) == "text/html" {
		body.HTML = text
	} else {
		body.Text = text
	}
}

// walk visits every leaf part in traversal order. A part that cannot be
// read is skipped; a container whose next part cannot be parsed stops. It
// reports false when no part could be found at all.
func walk(mr *textproto.MultipartReader, body *Body, limits Limits, depth int) bool {
	for first := true; ; first = false {
		p, err := mr.NextPart()
		if err == io.EOF {
			return true
		}
		if err != nil {
			return !first
		}

		h := message.Header{Header: p.Header}
		ct, params := mediaType(h)

		if strings.HasPrefix(ct, "multipart/") {
			if depth < maxDepth {
				if data, err := io.ReadAll(p); err == nil || truncated(err) {
					walk(textproto.NewMultipartReader(bytes.NewReader(data), params["boundary"]), body, limits, depth+1)
				}
			}
			continue
		}

		if filename, ok := attachmentName(h); ok {
			addAttachment(payload(h, p), ct, filename, body, limits)
			continue
		}

		text, ok := readText(decoded(h, p), limits.MaxBodyBytes)
		if !ok || text == "" {
			continue
		}
		switch ct {
		case "text/plain":
			body.Text = text
		case "text/html":
			body.HTML = text
		}
	}
}

// decoded undoes the transfer encoding and converts text parts to UTF-8.
// An unknown encoding or charset leaves that step undone.
func decoded(h message.Header, r io.Reader) io.Reader {
	e, _ := message.New(h, r)
	return e.Body
}

// payload undoes only the transfer encoding, so attachment sizes count the
// bytes as sent.
func payload(h message.Header, r io.Reader) io.Reader {
	bare := h.Copy()
	bare.Del("Content-Type")
	e, _ := message.New(bare, r)
	return e.Body
}

func mediaType(h message.Header) (string, map[string]string) {
	t, params, err := h.ContentType()
	if err != nil || t == "" {
		return "text/plain", nil
	}
	return strings.ToLower(t), params
}

func contentType(h message.Header) string {
	t, _ := mediaType(h)
	return t
}

// attachmentName reports whether the part is an attachment and its decoded
// filename. A part is an attachment when its disposition says so or when it
// names a file.
func attachmentName(h message.Header) (string, bool) {
	disposition := strings.ToLower(h.Get("Content-Disposition"))

	var filename string
	if _, params, err := h.ContentDisposition(); err == nil {
		filename = params["filename"]
	}
	if filename == "" {
		if _, params, err := h.ContentType(); err == nil {
			filename = params["name"]
		}
	}

	if !strings.Contains(disposition, "attachment") && filename == "" {
		return "", false
	}
	return decodeWords(filename), true
}

// addAttachment counts the payload without retaining it.
func addAttachment(r io.Reader, ct, filename string, body *Body, limits Limits) {
	n, err := io.Copy(io.Discard, io.LimitReader(r, limits.MaxAttachmentBytes+1))
	if err != nil && !truncated(err) {
		return
	}

	a := Attachment{
		Filename:    filename,
		ContentType: ct,
		Size:        n,
	}
	if n > limits.MaxAttachmentBytes {
		a.Size = limits.MaxAttachmentBytes
		a.Truncated = true
	}
	body.Attachments = append(body.Attachments, a)
}

// readText decodes at most max characters of r as UTF-8, replacing each
// invalid byte with U+FFFD.
func readText(r io.Reader, max int) (string, bool) {
	if max <= 0 {
		return "", true
	}

	// Every character takes at most four bytes, so this prefix always holds
	// at least max+1 characters when the payload is longer than max.
	data, err := io.ReadAll(io.LimitReader(r, int64(max)*utf8.UTFMax+utf8.UTFMax))
	if err != nil && !truncated(err) {
		return "", false
	}

	var out strings.Builder
	out.Grow(len(data))
	for count := 0; len(data) > 0 && count < max; count++ {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size <= 1 {
			out.WriteRune(utf8.RuneError)
			size = 1
		} else {
			out.WriteRune(r)
		}
		data = data[size:]
	}
	return out.String(), true
}

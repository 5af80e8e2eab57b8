package smtp

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

// Message is an outgoing email.
type Message struct {
	From    string
	To      []string
	Cc      []string
	Bcc     []string
	ReplyTo string
	Subject string

	// Body is the HTML part when HTML is set, the plain part otherwise.
	Body string
	HTML bool
	// TextBody is an optional plain alternative to an HTML body.
	TextBody string
}

// recipients returns the envelope recipients: To, then Cc, then Bcc.
func (m *Message) recipients() []string {
	out := make([]string, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	for _, list := range [][]string{m.To, m.Cc, m.Bcc} {
		for _, addr := range list {
			out = append(out, envelopeAddress(addr))
		}
	}
	return out
}

// envelopeAddress extracts the bare mailbox from a header-style address.
func envelopeAddress(s string) string {
	if a, err := mail.ParseAddress(s); err == nil {
		return a.Address
	}
	return strings.TrimSpace(s)
}

func domainOf(addr string) string {
	addr = envelopeAddress(addr)
	if i := strings.LastIndexByte(addr, '@'); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}

func (m *Message) header(now time.Time) mail.Header {
	var h mail.Header
	setAddresses(&h, "From", []string{m.From})
	setAddresses(&h, "To", m.To)
	if len(m.Cc) > 0 {
		setAddresses(&h, "Cc", m.Cc)
	}
	if m.ReplyTo != "" {
		setAddresses(&h, "Reply-To", []string{m.ReplyTo})
	}
	h.SetSubject(m.Subject)
	h.SetDate(now)
	h.SetMessageID(uuid.NewString() + "@" + domainOf(m.From))
	h.Set("MIME-Version", "1.0")
	return h
}

// setAddresses writes an address header, encoding display names. Lists that
// do not parse are written verbatim.
func setAddresses(h *mail.Header, key string, list []string) {
	addrs := make([]*mail.Address, 0, len(list))
	for _, s := range list {
		a, err := mail.ParseAddress(s)
		if err != nil {
			h.Set(key, strings.Join(list, ", "))
			return
		}
		addrs = append(addrs, a)
	}
	h.SetAddressList(key, addrs)
}

func textHeader(mediaType string) mail.InlineHeader {
	var h mail.InlineHeader
	h.SetContentType(mediaType, map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	return h
}

func writePart(w io.WriteCloser, body string) error {
	if _, err := io.WriteString(w, body); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// Compose renders m as RFC 5322 bytes. A plain message is a single
// text/plain entity; an HTML message is multipart/alternative with the
// optional plain part first.
func Compose(m *Message, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	h := m.header(now)

	if !m.HTML {
		h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
		h.Set("Content-Transfer-Encoding", "quoted-printable")
		w, err := mail.CreateSingleInlineWriter(&buf, h)
		if err != nil {
			return nil, fmt.Errorf("create message: %w", err)
		}
		if err := writePart(w, m.Body); err != nil {
			return nil, fmt.Errorf("write body: %w", err)
		}
		return buf.Bytes(), nil
	}

	iw, err := mail.CreateInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	if m.TextBody != "" {
		w, err := iw.CreatePart(textHeader("text/plain"))
		if err != nil {
			return nil, fmt.Errorf("create text part: %w", err)
		}
		if err := writePart(w, m.TextBody); err != nil {
			return nil, fmt.Errorf("write text part: %w", err)
		}
	}
	w, err := iw.CreatePart(textHeader("text/html"))
	if err != nil {
		return nil, fmt.Errorf("create html part: %w", err)
	}
	if err := writePart(w, m.Body); err != nil {
		return nil, fmt.Errorf("write html part: %w", err)
	}
	if err := iw.Close(); err != nil {
		return nil, fmt.Errorf("close message: %w", err)
	}
	return buf.Bytes(), nil
}

// ComposeWithAttachments renders m as multipart/mixed: the body part, then
// one base64 application/octet-stream part per attachment.
func ComposeWithAttachments(m *Message, attachments []AttachmentInfo, now time.Time) ([]byte, error) {
	var buf bytes.Buffer

	mw, err := mail.CreateWriter(&buf, m.header(now))
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	mediaType := "text/plain"
	if m.HTML {
		mediaType = "text/html"
	}
	w, err := mw.CreateSingleInline(textHeader(mediaType))
	if err != nil {
		return nil, fmt.Errorf("create body part: %w", err)
	}
	if err := writePart(w, m.Body); err != nil {
		return nil, fmt.Errorf("write body part: %w", err)
	}

	for _, a := range attachments {
		if err := writeAttachment(mw, a); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close message: %w", err)
	}
	return buf.Bytes(), nil
}

func writeAttachment(mw *mail.Writer, a AttachmentInfo) error {
	var ah mail.AttachmentHeader
	ah.Set("Content-Type", "application/octet-stream")
	ah.SetFilename(a.Filename)
	ah.Set("Content-Transfer-Encoding", "base64")

	f, err := os.Open(a.Path)
	if err != nil {
		return fmt.Errorf("open attachment %s: %w", a.Path, err)
	}
	defer f.Close()

	w, err := mw.CreateAttachment(ah)
	if err != nil {
		return fmt.Errorf("create attachment part: %w", err)
	}
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("write attachment %s: %w", a.Path, err)
	}
	return w.Close()
}

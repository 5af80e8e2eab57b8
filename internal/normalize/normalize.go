// Package normalize turns raw RFC 5322 messages into bounded, JSON-safe
// email records.
//
// Normalize never fails: every sub-step that cannot parse its input leaves
// the corresponding field at its zero value and the walk continues.
package normalize

import (
	"strconv"

	_ "github.com/emersion/go-message/charset"
)

// Address is a display name and mailbox pair.
type Address struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Attachment describes an attachment part. Payload bytes are never kept.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Truncated   bool   `json:"truncated"`
}

// Body holds the extracted text parts and attachment metadata.
type Body struct {
	Text        string       `json:"text"`
	HTML        string       `json:"html"`
	Attachments []Attachment `json:"attachments"`
}

// Headers is the fixed header subset carried in every record.
type Headers struct {
	MessageID   string `json:"message-id"`
	References  string `json:"references"`
	InReplyTo   string `json:"in-reply-to"`
	Date        string `json:"date"`
	ContentType string `json:"content-type"`
}

// Email is the normalized message record.
type Email struct {
	ID        string    `json:"id"`
	Mailbox   *string   `json:"mailbox"`
	From      Address   `json:"from"`
	To        []Address `json:"to"`
	Cc        []Address `json:"cc"`
	Bcc       []Address `json:"bcc"`
	Subject   string    `json:"subject"`
	Timestamp string    `json:"timestamp"`
	Body      Body      `json:"body"`
	Headers   Headers   `json:"headers"`
	Flags     []string  `json:"flags"`
}

// Limits bounds the size of extracted content.
type Limits struct {
	// MaxBodyBytes caps body.text and body.html, counted in characters.
	MaxBodyBytes int
	// MaxAttachmentBytes caps reported attachment sizes, counted in bytes.
	MaxAttachmentBytes int64
}

// SetMailbox records the mailbox the message was fetched from.
func (e *Email) SetMailbox(name string) {
	e.Mailbox = &name
}

// Normalize builds an Email record for the message with the given UID.
func Normalize(raw []byte, uid uint32, limits Limits) *Email {
	return NormalizeID(raw, strconv.FormatUint(uint64(uid), 10), limits)
}

// NormalizeID is Normalize with an arbitrary identifier.
func NormalizeID(raw []byte, id string, limits Limits) *Email {
	e := &Email{
		ID:    id,
		To:    []Address{},
		Cc:    []Address{},
		Bcc:   []Address{},
		Flags: []string{},
		Body: Body{
			Attachments: []Attachment{},
		},
	}

	head, body := splitMessage(raw)
	h := parseHeader(head)

	e.Headers = Headers{
		MessageID:   h.last("Message-Id"),
		References:  h.last("References"),
		InReplyTo:   h.last("In-Reply-To"),
		Date:        h.last("Date"),
		ContentType: h.last("Content-Type"),
	}

	if from := parseAddressList(h.all("From")); len(from) > 0 {
		e.From = from[0]
	}
	e.To = parseAddressList(h.all("To"))
	e.Cc = parseAddressList(h.all("Cc"))
	e.Bcc = parseAddressList(h.all("Bcc"))

	e.Timestamp = formatTimestamp(h.first("Date"))
	e.Subject = decodeWords(h.first("Subject"))

	// Re-join the cleaned header with the body so go-message sees the same
	// header set that was used above.
	extractBody(joinMessage(head, body), &e.Body, limits)

	return e
}

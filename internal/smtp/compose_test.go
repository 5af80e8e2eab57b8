package smtp

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
)

var composeTime = time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

func readHeader(t *testing.T, raw []byte) mail.Header {
	t.Helper()
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("CreateReader() error = %v", err)
	}
	return mr.Header
}

func TestCompose_Headers(t *testing.T) {
	m := &Message{
		From:    "Alice Example <alice@example.com>",
		To:      []string{"bob@example.org", "Carol <carol@example.org>"},
		Cc:      []string{"dave@example.org"},
		Bcc:     []string{"eve@example.org"},
		Subject: "Grüße",
		Body:    "hello",
	}

	raw, err := Compose(m, composeTime)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	h := readHeader(t, raw)

	subject, err := h.Subject()
	if err != nil || subject != "Grüße" {
		t.Errorf("Subject = %q (%v), want Grüße", subject, err)
	}

	date, err := h.Date()
	if err != nil || !date.Equal(composeTime) {
		t.Errorf("Date = %v (%v), want %v", date, err, composeTime)
	}

	id, err := h.MessageID()
	if err != nil || !strings.HasSuffix(id, "@example.com") {
		t.Errorf("Message-ID = %q (%v), want suffix @example.com", id, err)
	}

	to, err := h.AddressList("To")
	if err != nil || len(to) != 2 || to[1].Name != "Carol" || to[1].Address != "carol@example.org" {
		t.Errorf("To = %v (%v)", to, err)
	}

	if h.Has("Bcc") {
		t.Error("Bcc header present")
	}
	if got := h.Get("Mime-Version"); got != "1.0" {
		t.Errorf("MIME-Version = %q, want 1.0", got)
	}
	if mt, params, _ := h.ContentType(); mt != "text/plain" || params["charset"] != "utf-8" {
		t.Errorf("Content-Type = %q %v, want text/plain utf-8", mt, params)
	}
}

func TestCompose_UnparseableAddressKeptVerbatim(t *testing.T) {
	m := &Message{
		From: "alice@example.com",
		To:   []string{"not an address"},
		Body: "x",
	}

	raw, err := Compose(m, composeTime)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	h := readHeader(t, raw)
	if got := h.Get("To"); got != "not an address" {
		t.Errorf("To = %q, want verbatim value", got)
	}
}

func TestCompose_HTMLWithoutText(t *testing.T) {
	raw, err := Compose(&Message{
		From: "alice@example.com",
		To:   []string{"bob@example.org"},
		Body: "<p>only html</p>",
		HTML: true,
	}, composeTime)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("CreateReader() error = %v", err)
	}

	var types []string
	for {
		p, err := mr.NextPart()
		if err != nil {
			break
		}
		if h, ok := p.Header.(*mail.InlineHeader); ok {
			mt, _, _ := h.ContentType()
			types = append(types, mt)
		}
	}
	if want := []string{"text/html"}; !reflect.DeepEqual(types, want) {
		t.Errorf("parts = %v, want %v", types, want)
	}
}

func TestMessage_Recipients(t *testing.T) {
	m := &Message{
		To:  []string{"Bob <bob@example.org>"},
		Cc:  []string{"carol@example.org"},
		Bcc: []string{"eve@example.org"},
	}
	want := []string{"bob@example.org", "carol@example.org", "eve@example.org"}
	if got := m.recipients(); !reflect.DeepEqual(got, want) {
		t.Errorf("recipients() = %v, want %v", got, want)
	}
}

func TestInspectAttachments(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.bin")
	if err := os.WriteFile(file, make([]byte, 10), 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		paths []string
		max   int64
		want  error
	}{
		{"ok", []string{file}, 10, nil},
		{"over limit", []string{file}, 9, ErrAttachmentTooLarge},
		{"missing", []string{filepath.Join(dir, "nope")}, 10, ErrAttachmentNotFound},
		{"directory", []string{dir}, 10, ErrAttachmentNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InspectAttachments(tt.paths, tt.max)
			if !errors.Is(err, tt.want) {
				t.Fatalf("InspectAttachments() error = %v, want %v", err, tt.want)
			}
			if tt.want == nil && (len(got) != 1 || got[0].Filename != "a.bin" || got[0].Size != 10) {
				t.Errorf("InspectAttachments() = %+v", got)
			}
		})
	}
}

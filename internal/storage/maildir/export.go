// Package maildir writes fetched messages into a local Maildir.
package maildir

import (
	"fmt"
	"sort"

	"github.com/emersion/go-maildir"
)

// imapFlags maps IMAP system flags to Maildir info flags.
var imapFlags = map[string]maildir.Flag{
	`\Seen`:     maildir.FlagSeen,
	`\Answered`: maildir.FlagReplied,
	`\Flagged`:  maildir.FlagFlagged,
	`\Draft`:    maildir.FlagDraft,
	`\Deleted`:  maildir.FlagTrashed,
}

// Flags converts IMAP flags to Maildir flags. Keywords without a Maildir
// equivalent are dropped.
func Flags(flags []string) []maildir.Flag {
	var out []maildir.Flag
	for _, f := range flags {
		if mf, ok := imapFlags[f]; ok {
			out = append(out, mf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Export stores raw in the Maildir at path, creating the directory
// structure when missing, and returns the new message key.
func Export(path string, raw []byte, flags []string) (string, error) {
	dir := maildir.Dir(path)
	if err := dir.Init(); err != nil {
		return "", fmt.Errorf("failed to initialize maildir %s: %w", path, err)
	}

	msg, w, err := dir.Create(Flags(flags))
	if err != nil {
		return "", fmt.Errorf("failed to create message: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to write message: %w", err)
	}
	return msg.Key(), nil
}


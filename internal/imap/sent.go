package imap

import "strings"

// sentFolderNames are well-known sent mailbox names in preference order.
var sentFolderNames = []string{
	"Sent",
	"Sent Items",
	"Gesendet",
	"[Gmail]/Sent Mail",
	"Sent Messages",
	"OUTBOX",
}

// MatchSentFolder picks the sent mailbox from a mailbox listing: an exact
// well-known name, then a case-insensitive one, then the first name that
// mentions "sent" and not "draft". It returns "" when nothing matches.
func MatchSentFolder(names []string) string {
	for _, want := range sentFolderNames {
		for _, name := range names {
			if name == want {
				return name
			}
		}
	}

	for _, want := range sentFolderNames {
		for _, name := range names {
			if strings.EqualFold(name, want) {
				return name
			}
		}
	}

	for _, name := range names {
		lower := strings.ToLower(name)
		if strings.Contains(lower, "sent") && !strings.Contains(lower, "draft") {
			return name
		}
	}
	return ""
}

package imap

import (
	"strings"

	"github.com/emersion/go-imap/v2"
)

// ParseCriteria translates the search mini-language into IMAP criteria.
// Recognized forms are ALL, UNSEEN, FROM <addr> and SUBJECT <text>; the
// second return is false when the input was not recognized and ALL is used.
func ParseCriteria(s string) (*imap.SearchCriteria, bool) {
	switch {
	case strings.EqualFold(s, "ALL"):
		return &imap.SearchCriteria{}, true
	case strings.EqualFold(s, "UNSEEN"):
		return &imap.SearchCriteria{NotFlag: []imap.Flag{imap.FlagSeen}}, true
	case hasKeyword(s, "FROM "):
		return headerCriteria("From", s[len("FROM "):]), true
	case hasKeyword(s, "SUBJECT "):
		return headerCriteria("Subject", s[len("SUBJECT "):]), true
	}
	return &imap.SearchCriteria{}, false
}

func hasKeyword(s, keyword string) bool {
	return len(s) >= len(keyword) && strings.EqualFold(s[:len(keyword)], keyword)
}

func headerCriteria(key, value string) *imap.SearchCriteria {
	value = strings.Trim(strings.TrimSpace(value), `"'`)
	return &imap.SearchCriteria{
		Header: []imap.SearchCriteriaHeaderField{{Key: key, Value: value}},
	}
}

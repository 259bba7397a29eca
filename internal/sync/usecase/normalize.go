package usecase

import (
	"regexp"
	"strings"

	"leadpulse-backend/internal/sync/domain"
)

var (
	replyPrefixRe = regexp.MustCompile(`(?i)^\s*((re|fwd?|fw)\s*(\[\d+\])?\s*:\s*)+`)
	htmlTagRe     = regexp.MustCompile(`<[^>]*>`)
)

const snippetLength = 200

// subjectIndex derives the thread grouping key from a subject line. Reply and
// forward prefixes are stripped so "Re: Pricing" lands in the same thread as
// "Pricing"; comparison is case-insensitive on the trimmed remainder.
func subjectIndex(subject string) string {
	s := replyPrefixRe.ReplaceAllString(subject, "")
	s = strings.TrimSpace(s)
	if s == "" {
		return "(no subject)"
	}
	return strings.ToLower(s)
}

// makeSnippet produces a short plain-text preview from message content,
// preferring the text body and falling back to stripped HTML.
func makeSnippet(bodyText, bodyHTML string) string {
	source := bodyText
	if source == "" {
		source = htmlTagRe.ReplaceAllString(bodyHTML, " ")
	}
	// Collapse runs of whitespace left by tag stripping and quoting.
	source = strings.Join(strings.Fields(source), " ")
	if len(source) > snippetLength {
		cut := source[:snippetLength]
		if idx := strings.LastIndex(cut, " "); idx > snippetLength/2 {
			cut = cut[:idx]
		}
		return cut
	}
	return source
}

// joinAddresses flattens a recipient list for storage, keeping display names
// when present.
func joinAddresses(addrs []domain.RawAddress) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.Name != "" {
			parts = append(parts, a.Name+" <"+a.Address+">")
		} else {
			parts = append(parts, a.Address)
		}
	}
	return strings.Join(parts, ", ")
}

package usecase

import (
	"strings"
	"testing"

	"leadpulse-backend/internal/sync/domain"

	"github.com/stretchr/testify/assert"
)

func TestSubjectIndex(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Pricing question", "pricing question"},
		{"Re: Pricing question", "pricing question"},
		{"RE: RE: Pricing question", "pricing question"},
		{"Fwd: Pricing question", "pricing question"},
		{"FW: Pricing question", "pricing question"},
		{"Re[2]: Pricing question", "pricing question"},
		{"  Re:   Pricing question  ", "pricing question"},
		{"Regarding the invoice", "regarding the invoice"},
		{"", "(no subject)"},
		{"Re:", "(no subject)"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, subjectIndex(c.in), "subject %q", c.in)
	}
}

func TestMakeSnippetPrefersText(t *testing.T) {
	got := makeSnippet("plain body", "<p>html body</p>")
	assert.Equal(t, "plain body", got)
}

func TestMakeSnippetStripsHTML(t *testing.T) {
	got := makeSnippet("", "<div><p>Hello <b>world</b></p>\n<p>again</p></div>")
	assert.Equal(t, "Hello world again", got)
}

func TestMakeSnippetTruncatesOnWordBoundary(t *testing.T) {
	long := strings.Repeat("word ", 100)
	got := makeSnippet(long, "")
	assert.LessOrEqual(t, len(got), snippetLength)
	assert.False(t, strings.HasSuffix(got, " "))
	assert.NotContains(t, got, "wor d")
}

func TestMakeSnippetCollapsesWhitespace(t *testing.T) {
	got := makeSnippet("line one\n\n\tline   two", "")
	assert.Equal(t, "line one line two", got)
}

func TestJoinAddresses(t *testing.T) {
	got := joinAddresses([]domain.RawAddress{
		{Name: "Ada", Address: "ada@example.com"},
		{Address: "bob@example.com"},
	})
	assert.Equal(t, "Ada <ada@example.com>, bob@example.com", got)

	assert.Equal(t, "", joinAddresses(nil))
}

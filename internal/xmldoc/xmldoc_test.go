package xmldoc

import (
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 9, 14, 5, 6, 789_000_000, time.UTC)

func TestSplitLines(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{name: "blank line becomes space", text: "Hello\n\nWorld", want: []string{"Hello", " ", "World"}},
		{name: "trims surrounding whitespace", text: "  a  \n\tb\t", want: []string{"a", "b"}},
		{name: "crlf and cr", text: "one\r\ntwo\rthree", want: []string{"one", "two", "three"}},
		{name: "whitespace only line", text: "x\n   \ny", want: []string{"x", " ", "y"}},
		{name: "empty text", text: "", want: []string{" "}},
		{name: "trailing newline", text: "end\n", want: []string{"end", " "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitLines(tt.text))
		})
	}
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "3f1c", Title("uploads/pdfs/3f1c.pdf"))
	assert.Equal(t, "report.v2", Title("/tmp/report.v2.pdf"))
	assert.Equal(t, "noext", Title("noext"))
}

func TestMarshalSchema(t *testing.T) {
	doc := NewDocument("pdfs/abc.pdf", 3, "Hello\n\nWorld", fixedNow)

	out, err := Marshal(doc)
	require.NoError(t, err)

	want := `<?xml version="1.0" encoding="UTF-8"?>
<document>
  <metadata>
    <title>abc</title>
    <pages>3</pages>
    <createdAt>2024-03-09T14:05:06.789Z</createdAt>
  </metadata>
  <content>
    <text>
      <line>Hello</line>
      <line> </line>
      <line>World</line>
    </text>
  </content>
</document>
`
	assert.Equal(t, want, string(out))
}

func TestMarshalNormalisesTimezone(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	doc := Document{Title: "t", Pages: 1, CreatedAt: fixedNow.In(loc), Lines: []string{"x"}}

	out, err := Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(out), "<createdAt>2024-03-09T14:05:06.789Z</createdAt>")
}

func TestMarshalWellFormedLineCount(t *testing.T) {
	text := "first\n\n  second  \n\n\nthird"
	doc := NewDocument("x.pdf", 1, text, fixedNow)

	out, err := Marshal(doc)
	require.NoError(t, err)

	var parsed struct {
		Lines []string `xml:"content>text>line"`
	}
	require.NoError(t, xml.Unmarshal(out, &parsed))

	nonEmpty, blank := 0, 0
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) == "" {
			blank++
		} else {
			nonEmpty++
		}
	}
	assert.Len(t, parsed.Lines, nonEmpty+blank)
	assert.Equal(t, 3, strings.Count(string(out), "<line> </line>"))
	for _, l := range parsed.Lines {
		assert.NotEmpty(t, l)
	}
}

func TestMarshalEscapesRoundTrip(t *testing.T) {
	lines := []string{`a < b && c > d`, `say "hi"`, `it's`, `<tag attr='1'>`}
	doc := NewDocument("esc.pdf", 2, strings.Join(lines, "\n"), fixedNow)

	out, err := Marshal(doc)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "<tag")
	assert.Contains(t, string(out), "&lt;")
	assert.Contains(t, string(out), "&amp;&amp;")

	back, err := Unmarshal(out)
	require.NoError(t, err)
	assert.Equal(t, lines, back.Lines)
	assert.Equal(t, "esc", back.Title)
	assert.Equal(t, 2, back.Pages)
	assert.True(t, fixedNow.Equal(back.CreatedAt))
}

func TestMarshalIsDeterministic(t *testing.T) {
	doc := NewDocument("same.pdf", 4, "l1\nl2\n\nl3", fixedNow)

	a, err := Marshal(doc)
	require.NoError(t, err)
	b, err := Marshal(doc)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestMarshalRejectsNegativePages(t *testing.T) {
	_, err := Marshal(Document{Title: "x", Pages: -1})
	require.Error(t, err)
}

func TestMarshalFillsEmptyLines(t *testing.T) {
	out, err := Marshal(Document{Title: "x", Pages: 0, CreatedAt: fixedNow, Lines: []string{"", "a"}})
	require.NoError(t, err)
	assert.Contains(t, string(out), "<line> </line>")
	assert.Contains(t, string(out), "<pages>0</pages>")
}

// Package xmldoc renders extracted PDF text into the fixed document schema:
//
//	<document>
//	  <metadata><title/><pages/><createdAt/></metadata>
//	  <content><text><line/>...</text></content>
//	</document>
package xmldoc

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// TimeLayout is ISO-8601 in UTC with millisecond precision.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// blankLine replaces lines that are empty after trimming so no <line> body is empty.
const blankLine = " "

type Document struct {
	Title     string
	Pages     int
	CreatedAt time.Time
	Lines     []string
}

// NewDocument builds a Document for the PDF at sourcePath.
func NewDocument(sourcePath string, pages int, rawText string, now time.Time) Document {
	return Document{
		Title:     Title(sourcePath),
		Pages:     pages,
		CreatedAt: now.UTC(),
		Lines:     SplitLines(rawText),
	}
}

// Title is the base name of path without its extension.
func Title(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SplitLines splits text on line breaks, trims each line and substitutes a
// single space for lines left empty. Order is preserved.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimSpace(l)
		if l == "" {
			l = blankLine
		}
		lines = append(lines, l)
	}
	return lines
}

type xmlDocument struct {
	XMLName  xml.Name    `xml:"document"`
	Metadata xmlMetadata `xml:"metadata"`
	Content  xmlContent  `xml:"content"`
}

type xmlMetadata struct {
	Title     string `xml:"title"`
	Pages     int    `xml:"pages"`
	CreatedAt string `xml:"createdAt"`
}

type xmlContent struct {
	Text xmlText `xml:"text"`
}

type xmlText struct {
	Lines []string `xml:"line"`
}

// Marshal serializes doc with an XML declaration and two-space indentation.
func Marshal(doc Document) ([]byte, error) {
	if doc.Pages < 0 {
		return nil, fmt.Errorf("negative page count %d", doc.Pages)
	}

	lines := make([]string, len(doc.Lines))
	for i, l := range doc.Lines {
		if l == "" {
			l = blankLine
		}
		lines[i] = l
	}

	v := xmlDocument{
		Metadata: xmlMetadata{
			Title:     doc.Title,
			Pages:     doc.Pages,
			CreatedAt: doc.CreatedAt.UTC().Format(TimeLayout),
		},
		Content: xmlContent{Text: xmlText{Lines: lines}},
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode xml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("flush xml: %w", err)
	}
	buf.WriteByte('\n')

	return buf.Bytes(), nil
}

// Unmarshal parses a document produced by Marshal.
func Unmarshal(data []byte) (Document, error) {
	var v xmlDocument
	if err := xml.Unmarshal(data, &v); err != nil {
		return Document{}, fmt.Errorf("decode xml: %w", err)
	}

	created, err := time.Parse(time.RFC3339Nano, v.Metadata.CreatedAt)
	if err != nil {
		return Document{}, fmt.Errorf("parse createdAt: %w", err)
	}

	return Document{
		Title:     v.Metadata.Title,
		Pages:     v.Metadata.Pages,
		CreatedAt: created,
		Lines:     v.Content.Text.Lines,
	}, nil
}

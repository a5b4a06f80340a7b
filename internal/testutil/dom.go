// Package testutil holds helpers shared by HTTP-level tests.
package testutil

import (
	"bytes"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

// ParseHTML parses a response body into a goquery document for assertions.
func ParseHTML(t testing.TB, body []byte) *goquery.Document {
	t.Helper()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

// Slot returns the streamed content of a deferred layout slot.
func Slot(doc *goquery.Document, name string) *goquery.Selection {
	return doc.Find(`template[data-slot="` + name + `"]`)
}

// SlotOrder lists deferred slot names in the order they were streamed.
func SlotOrder(doc *goquery.Document) []string {
	var out []string
	doc.Find("template[data-slot]").Each(func(_ int, s *goquery.Selection) {
		out = append(out, s.AttrOr("data-slot", ""))
	})
	return out
}

package payslip

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	tokenMetaName  = "_csrf"
	headerMetaName = "_csrf_header"

	// DefaultTokenHeader is used when a page carries a token but does not
	// declare which header it should be echoed under.
	DefaultTokenHeader = "X-CSRF-TOKEN"
)

// ExtractToken returns the anti-forgery token declared by the page, or "" if
// there is none.
func ExtractToken(page string) string {
	token, _ := ExtractTokenAndHeaderName(page)
	return token
}

// ExtractTokenAndHeaderName returns the anti-forgery token and the header
// name the portal expects it under. Either value is "" when the page does
// not declare it. It never fails: unparseable markup yields two empty strings.
func ExtractTokenAndHeaderName(page string) (token string, headerName string) {
	if strings.TrimSpace(page) == "" {
		return "", ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", ""
	}

	token = metaContent(doc, tokenMetaName)
	if token == "" {
		// some pages only carry the token in a hidden form field
		token = strings.TrimSpace(
			doc.Find(`input[type="hidden"][name="` + tokenMetaName + `"]`).First().AttrOr("value", ""),
		)
	}
	headerName = metaContent(doc, headerMetaName)
	return token, headerName
}

func metaContent(doc *goquery.Document, name string) string {
	return strings.TrimSpace(
		doc.Find(`meta[name="` + name + `"]`).First().AttrOr("content", ""),
	)
}

package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/use-agent/tokscrape/models"
	"golang.org/x/net/html"
)

var hashtagMatcher = cascadia.MustCompile(hashtagSelector)

// Extractor turns rendered HTML into typed records using the selector
// tables in selectors.go. It holds no state and is safe for concurrent use.
type Extractor struct{}

// New creates an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract dispatches on kind. Unknown kinds are treated as profiles.
func (e *Extractor) Extract(rawHTML string, kind models.Kind) models.Record {
	if kind == models.KindVideo {
		return e.Video(rawHTML)
	}
	return e.Profile(rawHTML)
}

// Profile extracts a profile record. Missing nodes leave fields empty.
func (e *Extractor) Profile(rawHTML string) *models.Profile {
	p := &models.Profile{}
	doc := parse(rawHTML)
	apply(doc, profileFields, p)
	return p
}

// Video extracts a video record. Missing nodes leave fields empty.
func (e *Extractor) Video(rawHTML string) *models.Video {
	v := &models.Video{Hashtags: []models.Hashtag{}}
	doc := parse(rawHTML)
	apply(doc, videoFields, v)

	doc.FindMatcher(hashtagMatcher).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		v.Hashtags = append(v.Hashtags, models.Hashtag{
			Tag: strings.TrimSpace(s.Text()),
			URL: href,
		})
	})
	return v
}

// parse builds a document from rawHTML. The HTML5 parser recovers from
// malformed markup; a reader error leaves an empty document so extraction
// still yields a record with empty fields.
func parse(rawHTML string) *goquery.Document {
	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		root = &html.Node{Type: html.DocumentNode}
	}
	return goquery.NewDocumentFromNode(root)
}

func apply[R any](doc *goquery.Document, fields []Field[R], rec *R) {
	for _, f := range fields {
		f.Assign(rec, read(doc, f))
	}
}

func read[R any](doc *goquery.Document, f Field[R]) Value {
	sel := doc.FindMatcher(f.matcher)
	switch f.Source {
	case Attr:
		v, _ := sel.Attr(f.Attr)
		return Value{Text: v, Present: sel.Length() > 0}
	case Presence:
		return Value{Present: sel.Length() > 0}
	default:
		return Value{Text: strings.TrimSpace(sel.Text()), Present: sel.Length() > 0}
	}
}

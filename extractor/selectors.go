package extractor

import (
	"github.com/andybalholm/cascadia"
	"github.com/use-agent/tokscrape/models"
)

// DOM selectors for the target site. The site changes markup often; a
// layout change should only ever touch the tables in this file.

// Source says how a field's value is read from its matched nodes.
type Source int

const (
	// Text reads the trimmed text content of all matched nodes.
	Text Source = iota
	// Attr reads a named attribute of the first matched node.
	Attr
	// Presence reports whether any node matched.
	Presence
)

// Value is what a Field produced from a document.
type Value struct {
	Text    string
	Present bool
}

// Field maps one record field to a selector and a way of reading it.
type Field[R any] struct {
	Name     string
	Selector string
	Source   Source
	Attr     string
	Assign   func(r *R, v Value)

	matcher cascadia.Selector
}

// field compiles sel up front so a bad selector fails at package init.
func field[R any](name, sel string, src Source, attr string, assign func(*R, Value)) Field[R] {
	return Field[R]{
		Name:     name,
		Selector: sel,
		Source:   src,
		Attr:     attr,
		Assign:   assign,
		matcher:  cascadia.MustCompile(sel),
	}
}

const (
	// NotFoundHeading is the heading rendered in place of a missing account.
	NotFoundHeading = "h2"
	// NotFoundText is matched as a substring of NotFoundHeading's text.
	NotFoundText = "Couldn't find this account"

	// ProfileReadySelector appears once profile data has hydrated.
	ProfileReadySelector = `[data-e2e="user-title"]`
	// VideoReadySelector appears once video stats have hydrated.
	VideoReadySelector = `[data-e2e="like-count"]`

	hashtagSelector = `[data-e2e="browse-hashtag"]`
)

// ReadySelector returns the hydration marker for kind.
func ReadySelector(kind models.Kind) string {
	if kind == models.KindVideo {
		return VideoReadySelector
	}
	return ProfileReadySelector
}

var profileFields = []Field[models.Profile]{
	field("username", ProfileReadySelector, Text, "", func(p *models.Profile, v Value) { p.Username = v.Text }),
	field("nickname", `[data-e2e="user-subtitle"]`, Text, "", func(p *models.Profile, v Value) { p.Nickname = v.Text }),
	field("bio", `[data-e2e="user-bio"]`, Text, "", func(p *models.Profile, v Value) { p.Bio = v.Text }),
	field("avatar", `[data-e2e="user-avatar"] img`, Attr, "src", func(p *models.Profile, v Value) { p.Avatar = v.Text }),
	field("isVerified", `[data-e2e="verified-icon"]`, Presence, "", func(p *models.Profile, v Value) { p.IsVerified = v.Present }),
	field("followers", `[data-e2e="followers-count"]`, Text, "", func(p *models.Profile, v Value) { p.Followers = ParseCount(v.Text) }),
	field("following", `[data-e2e="following-count"]`, Text, "", func(p *models.Profile, v Value) { p.Following = ParseCount(v.Text) }),
	field("likes", `[data-e2e="likes-count"]`, Text, "", func(p *models.Profile, v Value) { p.Likes = ParseCount(v.Text) }),
	field("videoCount", `[data-e2e="video-count"]`, Text, "", func(p *models.Profile, v Value) { p.VideoCount = ParseCount(v.Text) }),
}

var videoFields = []Field[models.Video]{
	field("description", `[data-e2e="browse-video-desc"]`, Text, "", func(r *models.Video, v Value) { r.Description = v.Text }),
	field("likes", VideoReadySelector, Text, "", func(r *models.Video, v Value) { r.Likes = ParseCount(v.Text) }),
	field("comments", `[data-e2e="comment-count"]`, Text, "", func(r *models.Video, v Value) { r.Comments = ParseCount(v.Text) }),
	field("shares", `[data-e2e="share-count"]`, Text, "", func(r *models.Video, v Value) { r.Shares = ParseCount(v.Text) }),
	field("views", `[data-e2e="views-count"]`, Text, "", func(r *models.Video, v Value) { r.Views = ParseCount(v.Text) }),
	field("bookmarks", `[data-e2e="bookmark-count"]`, Text, "", func(r *models.Video, v Value) { r.Bookmarks = ParseCount(v.Text) }),
	field("music.title", `[data-e2e="browse-music"]`, Text, "", func(r *models.Video, v Value) { r.Music.Title = v.Text }),
	field("music.author", `[data-e2e="browse-music-author"]`, Text, "", func(r *models.Video, v Value) { r.Music.Author = v.Text }),
	field("music.url", `[data-e2e="browse-music"]`, Attr, "href", func(r *models.Video, v Value) { r.Music.URL = v.Text }),
	field("author.username", `[data-e2e="browser-nickname"]`, Text, "", func(r *models.Video, v Value) { r.Author.Username = v.Text }),
	field("author.avatar", `[data-e2e="browser-avatar"] img`, Attr, "src", func(r *models.Video, v Value) { r.Author.Avatar = v.Text }),
}

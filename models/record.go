package models

// Kind selects which page layout is being scraped.
type Kind string

const (
	KindProfile Kind = "profile"
	KindVideo   Kind = "video"
)

// Record is implemented by every extracted entity.
type Record interface {
	Kind() Kind
}

// Counter is a normalized shorthand counter such as "1.5M".
type Counter struct {
	// Value is Raw scaled by the K/M suffix.
	Value float64 `json:"value"`

	// Formatted is the source text verbatim.
	Formatted string `json:"formatted"`

	// Raw is the source text with everything but digits and '.' stripped.
	Raw string `json:"raw"`
}

// Profile holds the fields extracted from a user profile page.
type Profile struct {
	Username   string  `json:"username"`
	Nickname   string  `json:"nickname"`
	Bio        string  `json:"bio"`
	Avatar     string  `json:"avatar"`
	IsVerified bool    `json:"isVerified"`
	Followers  Counter `json:"followers"`
	Following  Counter `json:"following"`
	Likes      Counter `json:"likes"`
	VideoCount Counter `json:"videoCount"`
}

func (*Profile) Kind() Kind { return KindProfile }

// Video holds the fields extracted from a single video page.
type Video struct {
	Description string    `json:"description"`
	Likes       Counter   `json:"likes"`
	Comments    Counter   `json:"comments"`
	Shares      Counter   `json:"shares"`
	Views       Counter   `json:"views"`
	Bookmarks   Counter   `json:"bookmarks"`
	Music       Music     `json:"music"`
	Author      Author    `json:"author"`
	Hashtags    []Hashtag `json:"hashtags"`
}

func (*Video) Kind() Kind { return KindVideo }

// Music is the sound attached to a video.
type Music struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	URL    string `json:"url"`
}

// Author is the uploader shown on a video page.
type Author struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// Hashtag is a tag link in a video description.
type Hashtag struct {
	Tag string `json:"tag"`
	URL string `json:"url"`
}

package sources

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"quarry/internal/catalog"
)

// URLLeaf is a web address.
type URLLeaf struct {
	*catalog.BaseLeaf
	url string
}

type urlData struct {
	URL string `json:"url"`
}

// NewURLLeaf creates a leaf for u. An empty name displays the URL itself.
func NewURLLeaf(u, name string) *URLLeaf {
	if name == "" {
		name = u
	}
	return &URLLeaf{BaseLeaf: catalog.NewLeaf(URLType, "url:"+u, name, u), url: u}
}

// URL returns the address.
func (l *URLLeaf) URL() string { return l.url }

// Description shows the address when the leaf has a friendly name.
func (l *URLLeaf) Description() string {
	if l.Name() == l.url {
		return ""
	}
	return l.url
}

// Record implements catalog.Durable.
func (l *URLLeaf) Record() (catalog.LeafRecord, error) {
	return catalog.RecordOf(l, urlData{URL: l.url})
}

func decodeURL(rec catalog.LeafRecord) (catalog.Leaf, error) {
	var d urlData
	if err := json.Unmarshal(rec.Data, &d); err != nil {
		return nil, err
	}
	return NewURLLeaf(d.URL, rec.Name), nil
}

// Bookmark is a named URL.
type Bookmark struct {
	Name string
	URL  string
}

// BookmarkSource lists configured bookmarks.
type BookmarkSource struct {
	bookmarks []Bookmark
}

// NewBookmarkSource creates a source over bookmarks.
func NewBookmarkSource(bookmarks []Bookmark) *BookmarkSource {
	return &BookmarkSource{bookmarks: bookmarks}
}

func (s *BookmarkSource) Name() string                 { return "Bookmarks" }
func (s *BookmarkSource) Key() string                  { return "bookmarks" }
func (s *BookmarkSource) IsDynamic() bool              { return false }
func (s *BookmarkSource) Parent() catalog.Source       { return nil }
func (s *BookmarkSource) Provides() []catalog.LeafType { return []catalog.LeafType{URLType} }
func (s *BookmarkSource) ShouldSortLexically() bool    { return true }

func (s *BookmarkSource) Items(ctx context.Context) ([]catalog.Leaf, error) {
	leaves := make([]catalog.Leaf, 0, len(s.bookmarks))
	for _, b := range s.bookmarks {
		leaves = append(leaves, NewURLLeaf(b.URL, b.Name))
	}
	return leaves, nil
}

// LooksLikeURL reports whether text is plausibly a web address: an explicit
// http(s) URL or a host starting with "www.". It returns the normalized URL.
func LooksLikeURL(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" || strings.ContainsAny(text, " \t\n") {
		return "", false
	}
	candidate := text
	if strings.HasPrefix(text, "www.") {
		candidate = "https://" + text
	} else if !strings.HasPrefix(text, "http://") && !strings.HasPrefix(text, "https://") {
		return "", false
	}
	u, err := url.Parse(candidate)
	if err != nil || u.Host == "" {
		return "", false
	}
	if !strings.Contains(u.Host, ".") && u.Hostname() != "localhost" {
		return "", false
	}
	return u.String(), true
}

// Package stash implements the unified-stash document model: one JSON
// document per user holding every bookmark page, plus the transforms and
// mutations the service layer applies to it. The package is pure in-memory
// logic; persistence belongs to the store.
package stash

import (
	"errors"
	"regexp"
)

// DefaultColor is applied whenever a category color is missing or malformed.
const DefaultColor = "#3b82f6"

// MinQueryLength is the shortest search query that triggers a scan.
const MinQueryLength = 2

var (
	ErrPageNotFound      = errors.New("page not found")
	ErrPageExists        = errors.New("page already exists")
	ErrCategoryNotFound  = errors.New("category not found")
	ErrTooManyCategories = errors.New("too many categories")
	ErrInvalidPageKey    = errors.New("invalid page key")
	ErrInvalidFormat     = errors.New("invalid document format")
	ErrInvalidStructure  = errors.New("invalid document structure")
	ErrQueryTooShort     = errors.New("query too short")
)

var pageKeyPattern = regexp.MustCompile(`^[\w.-]+$`)

// Document is the whole-user bookmark collection in canonical storage shape.
// Every mutation reads the full document, changes it in memory and writes the
// full structure back; there is no partial persistence.
type Document struct {
	Stashes map[string]Page `json:"stashes"`
}

// Page is one named collection of categories. Categories is never nil in a
// normalized document.
type Page struct {
	Categories []Category `json:"categories"`
	IsPublic   bool       `json:"is_public"`
}

// Category is a titled, positioned group of links. Title doubles as the
// identity key for collapse-state lookups within a page.
type Category struct {
	Title     string    `json:"title"`
	Icon      string    `json:"icon,omitempty"`
	BaseURL   string    `json:"baseUrl,omitempty"`
	Color     string    `json:"color"`
	Links     []Link    `json:"links"`
	Positions Positions `json:"positions"`
}

type Positions struct {
	Collapsed int      `json:"collapsed"`
	Geometry  Geometry `json:"geometry"`
}

type Geometry struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Link struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Icon string `json:"icon,omitempty"`
}

// RenderCategory is the flattened, UI-ready form of a category: geometry and
// collapse state pulled to the top level, links renamed to items.
type RenderCategory struct {
	Title     string  `json:"title"`
	Icon      string  `json:"icon,omitempty"`
	BaseURL   string  `json:"baseUrl,omitempty"`
	Color     string  `json:"color"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Collapsed int     `json:"collapsed"`
	Items     []Link  `json:"items"`
}

// SearchResult is one matching link annotated with the page it lives on.
type SearchResult struct {
	Name  string `json:"name"`
	URL   string `json:"url"`
	Icon  string `json:"icon,omitempty"`
	Stash string `json:"stash"`
}

// Limits carries the configurable knobs of the save/render transforms.
type Limits struct {
	DefaultX          float64
	DefaultY          float64
	MaxCategories     int
	ValidatePositions bool
}

// DefaultLimits returns the limits used when nothing is configured.
func DefaultLimits() Limits {
	return Limits{
		DefaultX:          50,
		DefaultY:          50,
		MaxCategories:     50,
		ValidatePositions: true,
	}
}

// EmptyDocument returns the canonical empty document for users whose stash
// was never initialized.
func EmptyDocument() Document {
	return Document{Stashes: map[string]Page{}}
}

// ValidPageKey reports whether key is safe to use as a page identifier.
// The format is enforced at every boundary that accepts a key from a client.
func ValidPageKey(key string) bool {
	return pageKeyPattern.MatchString(key)
}

// Normalize repairs structural gaps after deserialization: a nil stash map
// and nil category or link slices become empty ones.
func (d *Document) Normalize() {
	if d.Stashes == nil {
		d.Stashes = map[string]Page{}
	}
	for key, page := range d.Stashes {
		if page.Categories == nil {
			page.Categories = []Category{}
		}
		for i := range page.Categories {
			if page.Categories[i].Links == nil {
				page.Categories[i].Links = []Link{}
			}
		}
		d.Stashes[key] = page
	}
}

func clonePage(p Page) Page {
	out := Page{
		Categories: make([]Category, len(p.Categories)),
		IsPublic:   p.IsPublic,
	}
	for i, cat := range p.Categories {
		links := make([]Link, len(cat.Links))
		copy(links, cat.Links)
		cat.Links = links
		out.Categories[i] = cat
	}
	return out
}

// Clone returns a deep copy of the document. Mutating the copy never affects
// the original.
func (d *Document) Clone() Document {
	out := Document{Stashes: make(map[string]Page, len(d.Stashes))}
	for key, page := range d.Stashes {
		out.Stashes[key] = clonePage(page)
	}
	return out
}

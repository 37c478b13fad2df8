package stash

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var seedYAML []byte

// seedFile mirrors seed.yaml. The YAML shape is kept separate from the
// storage shape so the seed file can stay flat and editable.
type seedFile struct {
	Pages []seedPage `yaml:"pages"`
}

type seedPage struct {
	Key        string         `yaml:"key"`
	Categories []seedCategory `yaml:"categories"`
}

type seedCategory struct {
	Title string     `yaml:"title"`
	Icon  string     `yaml:"icon"`
	Color string     `yaml:"color"`
	X     float64    `yaml:"x"`
	Y     float64    `yaml:"y"`
	Links []seedLink `yaml:"links"`
}

type seedLink struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
	Icon string `yaml:"icon"`
}

var (
	seedOnce sync.Once
	seedDoc  Document
	seedErr  error
)

func loadSeed() {
	var file seedFile
	if err := yaml.Unmarshal(seedYAML, &file); err != nil {
		seedErr = fmt.Errorf("parse seed content: %w", err)
		return
	}

	lim := DefaultLimits()
	doc := EmptyDocument()
	for _, page := range file.Pages {
		cats := make([]Category, 0, len(page.Categories))
		for _, sc := range page.Categories {
			links := make([]Link, 0, len(sc.Links))
			for _, sl := range sc.Links {
				links = append(links, Link{Name: sl.Name, URL: sl.URL, Icon: sl.Icon})
			}
			cats = append(cats, Category{
				Title: sc.Title,
				Icon:  sc.Icon,
				Color: sanitizeColor(sc.Color),
				Links: links,
				Positions: Positions{
					Geometry: Geometry{
						X: sanitizeCoordinate(sc.X, lim.DefaultX, true),
						Y: sanitizeCoordinate(sc.Y, lim.DefaultY, true),
					},
				},
			})
		}
		doc.Stashes[page.Key] = Page{Categories: cats}
	}
	seedDoc = doc
}

// DefaultDocument returns the seed content for a freshly registered user.
// Every call returns an independent deep copy; the parsed seed itself is
// never handed out, so no two users ever share category or link slices.
func DefaultDocument() (Document, error) {
	seedOnce.Do(loadSeed)
	if seedErr != nil {
		return Document{}, seedErr
	}
	return seedDoc.Clone(), nil
}

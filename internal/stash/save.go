package stash

import (
	"regexp"
	"strings"
)

var colorPattern = regexp.MustCompile(`^#[0-9a-f]{6}$`)

// Save converts a render-shape category list back into canonical storage
// shape and replaces the page's entire category list. Categories with a
// missing title are dropped rather than failing the whole save; positions
// and colors are sanitized so nothing malformed ever reaches storage.
// The page is created if it does not exist yet.
func (d *Document) Save(key string, cats []RenderCategory, lim Limits) error {
	if !ValidPageKey(key) {
		return ErrInvalidPageKey
	}
	if lim.MaxCategories > 0 && len(cats) > lim.MaxCategories {
		return ErrTooManyCategories
	}
	if d.Stashes == nil {
		d.Stashes = map[string]Page{}
	}

	stored := make([]Category, 0, len(cats))
	for _, rc := range cats {
		if strings.TrimSpace(rc.Title) == "" {
			continue
		}
		links := make([]Link, len(rc.Items))
		copy(links, rc.Items)
		stored = append(stored, Category{
			Title:   rc.Title,
			Icon:    rc.Icon,
			BaseURL: rc.BaseURL,
			Color:   sanitizeColor(rc.Color),
			Links:   links,
			Positions: Positions{
				Collapsed: normalizeCollapsed(rc.Collapsed),
				Geometry: Geometry{
					X: sanitizeCoordinate(rc.X, lim.DefaultX, lim.ValidatePositions),
					Y: sanitizeCoordinate(rc.Y, lim.DefaultY, lim.ValidatePositions),
				},
			},
		})
	}

	page := d.Stashes[key]
	page.Categories = stored
	d.Stashes[key] = page
	return nil
}

// sanitizeColor normalizes user input to a lowercase #rrggbb string, falling
// back to the default blue on anything that does not survive normalization.
func sanitizeColor(color string) string {
	color = strings.ToLower(strings.TrimSpace(color))
	if color == "" {
		return DefaultColor
	}
	if !strings.HasPrefix(color, "#") {
		color = "#" + color
	}
	if !colorPattern.MatchString(color) {
		return DefaultColor
	}
	return color
}

// sanitizeCoordinate treats an absent (zero) coordinate as unset and applies
// the configured default; negative values are clamped to the page origin when
// position validation is on.
func sanitizeCoordinate(v, def float64, validate bool) float64 {
	if v == 0 {
		return def
	}
	if validate && v < 0 {
		return 0
	}
	return v
}

func normalizeCollapsed(state int) int {
	if state != 0 {
		return 1
	}
	return 0
}

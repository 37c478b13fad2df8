package stash

import "sort"

// Render converts a stored page into its flattened render shape: defaults
// filled in, geometry and collapse state lifted to the top level, categories
// sorted left-to-right then top-to-bottom. The input document is not mutated.
func (d *Document) Render(key string, lim Limits) ([]RenderCategory, error) {
	page, ok := d.Stashes[key]
	if !ok {
		return nil, ErrPageNotFound
	}

	out := make([]RenderCategory, 0, len(page.Categories))
	for _, cat := range page.Categories {
		rc := RenderCategory{
			Title:     cat.Title,
			Icon:      cat.Icon,
			BaseURL:   cat.BaseURL,
			Color:     cat.Color,
			X:         cat.Positions.Geometry.X,
			Y:         cat.Positions.Geometry.Y,
			Collapsed: cat.Positions.Collapsed,
			Items:     make([]Link, len(cat.Links)),
		}
		copy(rc.Items, cat.Links)
		if rc.Color == "" {
			rc.Color = DefaultColor
		}
		if rc.X == 0 {
			rc.X = lim.DefaultX
		}
		if rc.Y == 0 {
			rc.Y = lim.DefaultY
		}
		out = append(out, rc)
	}

	// Stable (x, y) order keeps single-column mobile rendering deterministic
	// regardless of storage order.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].X != out[j].X {
			return out[i].X < out[j].X
		}
		return out[i].Y < out[j].Y
	})
	return out, nil
}

package stash

import "sort"

// EnsurePage initializes an empty page under key when it does not exist yet
// (create-on-first-edit). It reports whether the document changed so callers
// can skip the write-back for existing pages.
func (d *Document) EnsurePage(key string) (bool, error) {
	if !ValidPageKey(key) {
		return false, ErrInvalidPageKey
	}
	if d.Stashes == nil {
		d.Stashes = map[string]Page{}
	}
	if _, ok := d.Stashes[key]; ok {
		return false, nil
	}
	d.Stashes[key] = Page{Categories: []Category{}}
	return true, nil
}

// DeletePage removes key from the document. Deleting an absent key is a
// no-op success.
func (d *Document) DeletePage(key string) {
	delete(d.Stashes, key)
}

// RenamePage moves the page at oldKey to newKey. The move is atomic within
// the in-memory document; on any error the document is unchanged.
func (d *Document) RenamePage(oldKey, newKey string) error {
	if !ValidPageKey(newKey) {
		return ErrInvalidPageKey
	}
	page, ok := d.Stashes[oldKey]
	if !ok {
		return ErrPageNotFound
	}
	if _, exists := d.Stashes[newKey]; exists {
		return ErrPageExists
	}
	d.Stashes[newKey] = page
	delete(d.Stashes, oldKey)
	return nil
}

// ClonePage inserts a deep copy of the page at srcKey under newKey. The copy
// shares no references with the source: later edits to either never leak into
// the other.
func (d *Document) ClonePage(srcKey, newKey string) error {
	if !ValidPageKey(newKey) {
		return ErrInvalidPageKey
	}
	page, ok := d.Stashes[srcKey]
	if !ok {
		return ErrPageNotFound
	}
	if _, exists := d.Stashes[newKey]; exists {
		return ErrPageExists
	}
	d.Stashes[newKey] = clonePage(page)
	return nil
}

// SetCollapsed sets the collapse state of the category with the given title.
// Titles are the category identity; on duplicate titles the first match wins.
func (d *Document) SetCollapsed(key, title string, state int) error {
	page, ok := d.Stashes[key]
	if !ok {
		return ErrPageNotFound
	}
	for i := range page.Categories {
		if page.Categories[i].Title == title {
			page.Categories[i].Positions.Collapsed = normalizeCollapsed(state)
			d.Stashes[key] = page
			return nil
		}
	}
	return ErrCategoryNotFound
}

// SetPublic toggles unauthenticated read access for the page.
func (d *Document) SetPublic(key string, public bool) error {
	page, ok := d.Stashes[key]
	if !ok {
		return ErrPageNotFound
	}
	page.IsPublic = public
	d.Stashes[key] = page
	return nil
}

// PageNames returns every page key in lexicographic order.
func (d *Document) PageNames() []string {
	names := make([]string, 0, len(d.Stashes))
	for key := range d.Stashes {
		names = append(names, key)
	}
	sort.Strings(names)
	return names
}

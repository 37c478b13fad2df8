package stash

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Export serializes the whole document as pretty-printed JSON, the format
// Import accepts back.
func (d *Document) Export() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export document: %w", err)
	}
	return data, nil
}

// ParseDocument parses and structurally validates an imported document.
// A JSON syntax problem yields ErrInvalidFormat; well-formed JSON whose top
// level is not an object carrying an object-valued "stashes" key yields
// ErrInvalidStructure. The result is normalized and safe to store as a full
// replacement.
func ParseDocument(data []byte) (Document, error) {
	if !json.Valid(data) {
		return Document{}, fmt.Errorf("%w: malformed JSON", ErrInvalidFormat)
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return Document{}, fmt.Errorf("%w: top level is not an object", ErrInvalidStructure)
	}
	raw, ok := top["stashes"]
	if !ok {
		return Document{}, fmt.Errorf("%w: missing stashes key", ErrInvalidStructure)
	}
	var pages map[string]json.RawMessage
	if err := json.Unmarshal(raw, &pages); err != nil {
		return Document{}, fmt.Errorf("%w: stashes is not an object", ErrInvalidStructure)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidStructure, err)
	}
	doc.Normalize()
	return doc, nil
}

// SearchLinks linearly scans every link of every category across all pages,
// matching the query case-insensitively against link name or URL. Pages are
// scanned in lexicographic key order so results are deterministic. Queries
// below MinQueryLength are rejected without scanning.
func (d *Document) SearchLinks(query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if len(query) < MinQueryLength {
		return nil, ErrQueryTooShort
	}
	needle := strings.ToLower(query)

	results := []SearchResult{}
	for _, key := range d.PageNames() {
		for _, cat := range d.Stashes[key].Categories {
			for _, link := range cat.Links {
				if strings.Contains(strings.ToLower(link.Name), needle) ||
					strings.Contains(strings.ToLower(link.URL), needle) {
					results = append(results, SearchResult{
						Name:  link.Name,
						URL:   link.URL,
						Icon:  link.Icon,
						Stash: key,
					})
				}
			}
		}
	}
	return results, nil
}

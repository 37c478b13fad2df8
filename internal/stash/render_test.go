package stash

import "testing"

func testDoc() *Document {
	return &Document{Stashes: map[string]Page{
		"links": {
			Categories: []Category{
				{
					Title: "Essentials",
					Color: "#3b82f6",
					Links: []Link{{Name: "Google", URL: "https://google.com"}},
					Positions: Positions{
						Collapsed: 0,
						Geometry:  Geometry{X: 400, Y: 50},
					},
				},
				{
					Title: "News",
					Color: "#ef4444",
					Links: []Link{{Name: "Hacker News", URL: "https://news.ycombinator.com"}},
					Positions: Positions{
						Collapsed: 1,
						Geometry:  Geometry{X: 50, Y: 200},
					},
				},
				{
					Title: "Tools",
					Color: "#10b981",
					Links: []Link{},
					Positions: Positions{
						Geometry: Geometry{X: 50, Y: 80},
					},
				},
			},
		},
		"work": {
			Categories: []Category{},
			IsPublic:   true,
		},
	}}
}

func TestRenderMissingPageReturnsNotFound(t *testing.T) {
	doc := testDoc()
	_, err := doc.Render("nope", DefaultLimits())
	if err != ErrPageNotFound {
		t.Fatalf("expected ErrPageNotFound, got %v", err)
	}
}

func TestRenderEmptyPageIsEmptyListNotError(t *testing.T) {
	doc := testDoc()
	cats, err := doc.Render("work", DefaultLimits())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(cats) != 0 {
		t.Fatalf("expected empty list, got %d categories", len(cats))
	}
}

func TestRenderSortsByXThenY(t *testing.T) {
	doc := testDoc()
	cats, err := doc.Render("links", DefaultLimits())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(cats) != 3 {
		t.Fatalf("expected 3 categories, got %d", len(cats))
	}
	for i := 1; i < len(cats); i++ {
		prev, cur := cats[i-1], cats[i]
		if prev.X > cur.X || (prev.X == cur.X && prev.Y > cur.Y) {
			t.Fatalf("categories not sorted at %d: (%v,%v) before (%v,%v)", i, prev.X, prev.Y, cur.X, cur.Y)
		}
	}
	if cats[0].Title != "Tools" || cats[1].Title != "News" || cats[2].Title != "Essentials" {
		t.Fatalf("unexpected order: %s, %s, %s", cats[0].Title, cats[1].Title, cats[2].Title)
	}
}

func TestRenderFlattensPositionsAndRenamesLinks(t *testing.T) {
	doc := testDoc()
	cats, err := doc.Render("links", DefaultLimits())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	var news *RenderCategory
	for i := range cats {
		if cats[i].Title == "News" {
			news = &cats[i]
		}
	}
	if news == nil {
		t.Fatal("News category missing from render output")
	}
	if news.X != 50 || news.Y != 200 {
		t.Fatalf("expected geometry flattened to (50,200), got (%v,%v)", news.X, news.Y)
	}
	if news.Collapsed != 1 {
		t.Fatalf("expected collapsed=1, got %d", news.Collapsed)
	}
	if len(news.Items) != 1 || news.Items[0].Name != "Hacker News" {
		t.Fatalf("expected links carried over as items, got %+v", news.Items)
	}
}

func TestRenderAppliesDefaults(t *testing.T) {
	doc := &Document{Stashes: map[string]Page{
		"p": {Categories: []Category{{Title: "Bare"}}},
	}}
	lim := DefaultLimits()
	cats, err := doc.Render("p", lim)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	got := cats[0]
	if got.Color != DefaultColor {
		t.Errorf("expected default color %s, got %s", DefaultColor, got.Color)
	}
	if got.X != lim.DefaultX || got.Y != lim.DefaultY {
		t.Errorf("expected default position (%v,%v), got (%v,%v)", lim.DefaultX, lim.DefaultY, got.X, got.Y)
	}
	if got.Collapsed != 0 {
		t.Errorf("expected collapsed default 0, got %d", got.Collapsed)
	}
}

func TestRenderDoesNotMutateDocument(t *testing.T) {
	doc := testDoc()
	cats, err := doc.Render("links", DefaultLimits())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	cats[0].Items = append(cats[0].Items, Link{Name: "Injected", URL: "https://x"})
	cats[0].Title = "Changed"

	if doc.Stashes["links"].Categories[0].Title != "Essentials" {
		t.Fatal("render output shares category memory with the document")
	}
	for _, cat := range doc.Stashes["links"].Categories {
		for _, link := range cat.Links {
			if link.Name == "Injected" {
				t.Fatal("render output shares link memory with the document")
			}
		}
	}
}

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stashboard/api/internal/auth"
	"stashboard/api/internal/authpw"
	"stashboard/api/internal/logger"
	"stashboard/api/internal/stash"
	"stashboard/api/internal/store"
)

func newTestServer(t *testing.T, fs *fakeStore) (*httptest.Server, *Service) {
	t.Helper()
	svc := New(testConfig(), fs, authpw.NewService(fs), logger.NewNop())
	server := httptest.NewServer(NewHTTPServer(svc, "*", logger.NewNop()).Handler())
	t.Cleanup(server.Close)
	return server, svc
}

func bearerFor(t *testing.T, role string) string {
	t.Helper()
	token, err := auth.IssueToken([]byte(testConfig().TokenSecret), auth.Claims{
		Sub:  "usr_1",
		Name: "Casey",
		Role: role,
		JTI:  "jti_test",
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return token
}

func doJSON(t *testing.T, method, url, bearer string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestEndpointsRequireAuth(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{})

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/pages"},
		{http.MethodGet, "/api/pages/home"},
		{http.MethodPut, "/api/pages/home"},
		{http.MethodDelete, "/api/pages/home"},
		{http.MethodPost, "/api/stash/state"},
		{http.MethodPost, "/api/stash/visibility"},
		{http.MethodGet, "/api/export"},
		{http.MethodPost, "/api/import"},
		{http.MethodGet, "/api/search"},
	} {
		resp, body := doJSON(t, route.method, server.URL+route.path, "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s %s: status = %d, want 401", route.method, route.path, resp.StatusCode)
		}
		if body["code"] != "UNAUTHORIZED" {
			t.Errorf("%s %s: code = %v", route.method, route.path, body["code"])
		}
	}
}

func TestSavePageContract(t *testing.T) {
	var saved stash.Document
	fs := &fakeStore{
		getStashDocument: func(_ context.Context, _ string) (stash.Document, error) {
			return stash.EmptyDocument(), nil
		},
		setStashDocument: func(_ context.Context, _ string, doc stash.Document) error {
			saved = doc
			return nil
		},
	}
	server, _ := newTestServer(t, fs)
	bearer := bearerFor(t, store.RoleMember)

	payload := []map[string]any{
		{
			"title": "Tools",
			"color": "112233",
			"x":     -4,
			"y":     0,
			"items": []map[string]string{{"name": "Grafana", "url": "https://grafana.example.com"}},
		},
	}
	resp, body := doJSON(t, http.MethodPut, server.URL+"/api/pages/home", bearer, payload)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if body["success"] != float64(1) {
		t.Errorf("body = %v, want success:1", body)
	}

	cats := saved.Stashes["home"].Categories
	if len(cats) != 1 {
		t.Fatalf("saved categories = %+v", cats)
	}
	if cats[0].Color != "#112233" {
		t.Errorf("color = %q, want sanitized #112233", cats[0].Color)
	}
	if got := cats[0].Positions.Geometry; got.X != 0 || got.Y != 50 {
		t.Errorf("geometry = %+v, want clamped x=0 and defaulted y=50", got)
	}
}

func TestSavePageRejectsNullBody(t *testing.T) {
	fs := &fakeStore{
		getStashDocument: func(_ context.Context, _ string) (stash.Document, error) {
			return sampleDocument(), nil
		},
		setStashDocument: func(_ context.Context, _ string, _ stash.Document) error {
			t.Error("null body must not persist")
			return nil
		},
	}
	server, _ := newTestServer(t, fs)
	bearer := bearerFor(t, store.RoleMember)

	resp, body := doJSON(t, http.MethodPut, server.URL+"/api/pages/home", bearer, json.RawMessage("null"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if body["code"] != "INVALID_BODY" {
		t.Errorf("code = %v", body["code"])
	}

	// an explicit empty list is still a valid full replace
	fs.setStashDocument = func(_ context.Context, _ string, doc stash.Document) error {
		if got := len(doc.Stashes["home"].Categories); got != 0 {
			t.Errorf("categories = %d, want 0", got)
		}
		return nil
	}
	resp, body = doJSON(t, http.MethodPut, server.URL+"/api/pages/home", bearer, []stash.RenderCategory{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("empty list: status = %d, body = %v", resp.StatusCode, body)
	}
}

func TestVisibilityToggleContract(t *testing.T) {
	doc := stash.EmptyDocument()
	doc.Stashes["home"] = stash.Page{Categories: []stash.Category{}}
	fs := &fakeStore{
		getStashDocument: func(_ context.Context, _ string) (stash.Document, error) {
			return doc, nil
		},
	}
	server, _ := newTestServer(t, fs)
	bearer := bearerFor(t, store.RoleMember)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/stash/visibility", bearer,
		map[string]any{"page_key": "home", "is_public": true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if body["success"] != float64(1) || body["page_key"] != "home" || body["is_public"] != true {
		t.Errorf("body = %v", body)
	}
}

func TestStateToggleValidation(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{})
	bearer := bearerFor(t, store.RoleMember)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/stash/state", bearer,
		map[string]any{"page_key": "bad key", "category_title": "Tools", "state": 1})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if body["code"] != "INVALID_INPUT" {
		t.Errorf("code = %v", body["code"])
	}

	resp, _ = doJSON(t, http.MethodPost, server.URL+"/api/stash/state", bearer,
		map[string]any{"page_key": "home", "category_title": "Tools", "state": 3})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("state=3: status = %d, want 400", resp.StatusCode)
	}
}

func TestDemoMutationForbidden(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{
		getStashDocument: func(_ context.Context, _ string) (stash.Document, error) {
			t.Error("demo mutation must not reach the store")
			return stash.EmptyDocument(), nil
		},
	})
	bearer := bearerFor(t, store.RoleDemo)

	resp, body := doJSON(t, http.MethodDelete, server.URL+"/api/pages/home", bearer, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if body["code"] != "FORBIDDEN" {
		t.Errorf("code = %v", body["code"])
	}
}

func TestExportAttachmentHeaders(t *testing.T) {
	fs := &fakeStore{
		getStashDocument: func(_ context.Context, _ string) (stash.Document, error) {
			return sampleDocument(), nil
		},
	}
	server, _ := newTestServer(t, fs)

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/api/export", nil)
	req.Header.Set("Authorization", "Bearer "+bearerFor(t, store.RoleMember))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	disposition := resp.Header.Get("Content-Disposition")
	if !strings.HasPrefix(disposition, "attachment;") || !strings.Contains(disposition, ".json") {
		t.Errorf("Content-Disposition = %q", disposition)
	}

	var doc stash.Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if _, ok := doc.Stashes["home"]; !ok {
		t.Error("export missing home page")
	}
}

func TestImportRejectsWrongStructure(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{})
	bearer := bearerFor(t, store.RoleMember)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, _ := writer.CreateFormFile("file", "backup.json")
	_, _ = part.Write([]byte(`{"pages":{}}`))
	_ = writer.Close()

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/api/import", &buf)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body["code"] != "INVALID_STRUCTURE" {
		t.Errorf("code = %v", body["code"])
	}
}

func TestSearchTooShortResponse(t *testing.T) {
	fs := &fakeStore{
		getStashDocument: func(_ context.Context, _ string) (stash.Document, error) {
			return sampleDocument(), nil
		},
	}
	server, _ := newTestServer(t, fs)
	bearer := bearerFor(t, store.RoleMember)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/search?q=g", bearer, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["tooShort"] != true {
		t.Errorf("body = %v, want tooShort:true", body)
	}
	results, ok := body["results"].([]any)
	if !ok || len(results) != 0 {
		t.Errorf("results = %v, want empty list", body["results"])
	}

	resp, body = doJSON(t, http.MethodGet, server.URL+"/api/search?q=graf", bearer, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	results, ok = body["results"].([]any)
	if !ok || len(results) != 1 {
		t.Fatalf("results = %v", body["results"])
	}
	match := results[0].(map[string]any)
	if match["name"] != "Grafana" || match["stash"] != "home" {
		t.Errorf("match = %v", match)
	}
}

func TestPublicPageEndpoint(t *testing.T) {
	doc := sampleDocument()
	page := doc.Stashes["home"]
	page.IsPublic = true
	doc.Stashes["home"] = page

	fs := &fakeStore{
		getUserByName: func(_ context.Context, name string) (store.User, error) {
			return store.User{ID: "usr_1", DisplayName: name}, nil
		},
		getStashDocument: func(_ context.Context, _ string) (stash.Document, error) {
			return doc, nil
		},
	}
	server, _ := newTestServer(t, fs)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/public/Casey/home", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if body["page_key"] != "home" || body["is_public"] != true {
		t.Errorf("body = %v", body)
	}
}

func TestSessionInfoWithoutToken(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{})

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/session", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["authenticated"] != false {
		t.Errorf("body = %v", body)
	}
}

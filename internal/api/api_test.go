package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/starford/laguz/internal/contextservice"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/testutil"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	db := testutil.TestDB(t)
	svc := contextservice.NewService(db, nil)
	srv := httptest.NewServer(NewRouter(svc, false, "", nil))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeData[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var envelope struct {
		Data T `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return envelope.Data
}

func createContext(t *testing.T, srv *httptest.Server, name string) models.Context {
	t.Helper()
	body := map[string]any{}
	if name != "" {
		body["name"] = name
	}
	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/contexts", body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create context: status = %d, want 201", resp.StatusCode)
	}
	return decodeData[models.Context](t, resp)
}

func appendBody(roles ...string) map[string]any {
	msgs := make([]map[string]any, len(roles))
	for i, role := range roles {
		msgs[i] = map[string]any{"role": role, "content": "msg", "tokenCount": 10}
	}
	return map[string]any{"messages": msgs}
}

func TestCreateAndGetContext(t *testing.T) {
	srv := testServer(t)

	c := createContext(t, srv, "support-chat")
	if c.ID == "" {
		t.Fatal("expected generated id")
	}
	if c.Name == nil || *c.Name != "support-chat" {
		t.Errorf("name = %v, want support-chat", c.Name)
	}
	if c.MessageCount != 0 || c.LatestVersion != 0 {
		t.Errorf("counters = (%d, %d), want zero", c.MessageCount, c.LatestVersion)
	}

	resp := doJSON(t, http.MethodGet, srv.URL+"/v1/contexts/"+c.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: status = %d, want 200", resp.StatusCode)
	}
	got := decodeData[models.Context](t, resp)
	if got.ID != c.ID {
		t.Errorf("id = %q, want %q", got.ID, c.ID)
	}
}

func TestGetContext_NotFoundAndBadID(t *testing.T) {
	srv := testServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/v1/contexts/0c6a8b9e-1111-4222-8333-444455556666", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing context: status = %d, want 404", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/contexts/not-a-uuid", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid uuid: status = %d, want 400", resp.StatusCode)
	}
}

func TestCreateContext_Validation(t *testing.T) {
	srv := testServer(t)

	long := make([]byte, 256)
	for i := range long {
		long[i] = 'a'
	}
	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/contexts", map[string]any{"name": string(long)})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("overlong name: status = %d, want 400", resp.StatusCode)
	}
}

func TestDeleteContext(t *testing.T) {
	srv := testServer(t)
	c := createContext(t, srv, "")

	resp := doJSON(t, http.MethodDelete, srv.URL+"/v1/contexts/"+c.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: status = %d, want 200", resp.StatusCode)
	}
	deleted := decodeData[models.Context](t, resp)
	if deleted.DeletedAt == nil {
		t.Error("expected deletedAt on delete response")
	}

	// The tombstoned context behaves as absent from here on.
	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/contexts/"+c.ID, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete: status = %d, want 404", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodDelete, srv.URL+"/v1/contexts/"+c.ID, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete: status = %d, want 404", resp.StatusCode)
	}
}

func TestAppendMessages(t *testing.T) {
	srv := testServer(t)
	c := createContext(t, srv, "")

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/contexts/"+c.ID+"/messages", appendBody("user", "assistant"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("append: status = %d, want 201", resp.StatusCode)
	}
	msgs := decodeData[[]models.Message](t, resp)
	if len(msgs) != 2 || msgs[0].Version != 1 || msgs[1].Version != 2 {
		t.Fatalf("appended messages = %+v, want versions 1 and 2", msgs)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/contexts/"+c.ID, nil)
	got := decodeData[models.Context](t, resp)
	if got.MessageCount != 2 || got.TotalTokens != 20 || got.LatestVersion != 2 {
		t.Errorf("counters = (%d, %d, %d), want (2, 20, 2)", got.MessageCount, got.TotalTokens, got.LatestVersion)
	}
}

func TestAppendMessages_Validation(t *testing.T) {
	srv := testServer(t)
	c := createContext(t, srv, "")
	url := srv.URL + "/v1/contexts/" + c.ID + "/messages"

	cases := []struct {
		name string
		body map[string]any
	}{
		{"empty batch", map[string]any{"messages": []any{}}},
		{"missing messages", map[string]any{}},
		{"bad role", map[string]any{"messages": []map[string]any{{"role": "robot", "content": "x"}}}},
		{"empty content", map[string]any{"messages": []map[string]any{{"role": "user", "content": ""}}}},
		{"negative tokens", map[string]any{"messages": []map[string]any{{"role": "user", "content": "x", "tokenCount": -1}}}},
		{"tool without call id", map[string]any{"messages": []map[string]any{{"role": "tool", "content": "x"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doJSON(t, http.MethodPost, url, tc.body)
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestAppendMessages_MissingContext(t *testing.T) {
	srv := testServer(t)

	url := srv.URL + "/v1/contexts/0c6a8b9e-1111-4222-8333-444455556666/messages"
	resp := doJSON(t, http.MethodPost, url, appendBody("user"))
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestListMessages_Pagination(t *testing.T) {
	srv := testServer(t)
	c := createContext(t, srv, "")
	base := srv.URL + "/v1/contexts/" + c.ID + "/messages"

	resp := doJSON(t, http.MethodPost, base, appendBody("user", "assistant", "user", "assistant", "user"))
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, base+"?limit=2", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: status = %d, want 200", resp.StatusCode)
	}
	var page models.Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(page.Data) != 2 || !page.HasMore || page.NextCursor == nil || *page.NextCursor != 2 {
		t.Fatalf("first page = %+v", page)
	}

	resp = doJSON(t, http.MethodGet, fmt.Sprintf("%s?limit=2&cursor=%d", base, *page.NextCursor), nil)
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(page.Data) != 2 || page.Data[0].Version != 3 {
		t.Fatalf("second page = %+v", page)
	}

	resp = doJSON(t, http.MethodGet, base+"?order=desc&limit=1", nil)
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(page.Data) != 1 || page.Data[0].Version != 5 {
		t.Fatalf("desc page = %+v", page)
	}
}

func TestListMessages_ParamValidation(t *testing.T) {
	srv := testServer(t)
	c := createContext(t, srv, "")
	base := srv.URL + "/v1/contexts/" + c.ID + "/messages"

	for _, qs := range []string{"?cursor=abc", "?limit=0", "?limit=1001", "?limit=x", "?order=upward"} {
		resp := doJSON(t, http.MethodGet, base+qs, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", qs, resp.StatusCode)
		}
	}
}

func TestGetWindow(t *testing.T) {
	srv := testServer(t)
	c := createContext(t, srv, "")
	base := srv.URL + "/v1/contexts/" + c.ID

	body := map[string]any{"messages": []map[string]any{
		{"role": "user", "content": "a", "tokenCount": 10},
		{"role": "assistant", "content": "b", "tokenCount": 20},
		{"role": "user", "content": "c", "tokenCount": 15},
		{"role": "assistant", "content": "d", "tokenCount": 25},
	}}
	resp := doJSON(t, http.MethodPost, base+"/messages", body)
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, base+"/window?budget=40", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("window: status = %d, want 200", resp.StatusCode)
	}
	window := decodeData[[]models.Message](t, resp)
	if len(window) != 2 || window[0].Version != 3 || window[1].Version != 4 {
		t.Fatalf("window = %+v, want versions 3 and 4", window)
	}
}

func TestGetWindow_BudgetValidation(t *testing.T) {
	srv := testServer(t)
	c := createContext(t, srv, "")
	base := srv.URL + "/v1/contexts/" + c.ID + "/window"

	for _, qs := range []string{"", "?budget=0", "?budget=-5", "?budget=abc", "?budget=1.5"} {
		resp := doJSON(t, http.MethodGet, base+qs, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%q: status = %d, want 400", qs, resp.StatusCode)
		}
	}
}

func TestAuthMiddleware(t *testing.T) {
	db := testutil.TestDB(t)
	svc := contextservice.NewService(db, nil)
	srv := httptest.NewServer(NewRouter(svc, true, "secret", nil))
	defer srv.Close()

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/contexts", map[string]any{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/contexts", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token: status = %d, want 401", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/v1/contexts", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("valid token: status = %d, want 201", resp.StatusCode)
	}
}

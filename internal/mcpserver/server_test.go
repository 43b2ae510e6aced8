package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/laguz/internal/contextservice"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/testutil"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	db := testutil.TestDB(t)
	return New(contextservice.NewService(db, nil))
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so the handler
	// functions are invoked directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "create_context":
		result, err = srv.createContext(ctx, req)
	case "get_context":
		result, err = srv.getContext(ctx, req)
	case "delete_context":
		result, err = srv.deleteContext(ctx, req)
	case "append_messages":
		result, err = srv.appendMessages(ctx, req)
	case "list_messages":
		result, err = srv.listMessages(ctx, req)
	case "get_window":
		result, err = srv.getWindow(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func createContext(t *testing.T, srv *Server) models.Context {
	t.Helper()
	r := callTool(t, srv, "create_context", map[string]interface{}{"name": "test"})
	if r.IsError {
		t.Fatalf("create_context failed: %s", resultText(r))
	}
	var c models.Context
	if err := json.Unmarshal([]byte(resultText(r)), &c); err != nil {
		t.Fatalf("create_context result not JSON: %v", err)
	}
	return c
}

func TestCreateAndGetContext(t *testing.T) {
	srv := testServer(t)
	c := createContext(t, srv)
	if c.ID == "" {
		t.Fatal("expected generated id")
	}

	r := callTool(t, srv, "get_context", map[string]interface{}{"context_id": c.ID})
	if r.IsError {
		t.Fatalf("get_context failed: %s", resultText(r))
	}
	var got models.Context
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != c.ID || got.Name == nil || *got.Name != "test" {
		t.Errorf("got = %+v", got)
	}
}

func TestGetContextMissing(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "get_context", map[string]interface{}{"context_id": "nope"})
	if !r.IsError {
		t.Error("expected error for missing context")
	}
}

func TestDeleteContext(t *testing.T) {
	srv := testServer(t)
	c := createContext(t, srv)

	r := callTool(t, srv, "delete_context", map[string]interface{}{"context_id": c.ID})
	if r.IsError {
		t.Fatalf("delete_context failed: %s", resultText(r))
	}
	r = callTool(t, srv, "delete_context", map[string]interface{}{"context_id": c.ID})
	if !r.IsError {
		t.Error("second delete should fail")
	}
}

func TestAppendAndListMessages(t *testing.T) {
	srv := testServer(t)
	c := createContext(t, srv)

	r := callTool(t, srv, "append_messages", map[string]interface{}{
		"context_id": c.ID,
		"messages":   `[{"role":"user","content":"Hi","tokenCount":3},{"role":"assistant","content":"Hello","tokenCount":4}]`,
	})
	if r.IsError {
		t.Fatalf("append_messages failed: %s", resultText(r))
	}
	var msgs []models.Message
	if err := json.Unmarshal([]byte(resultText(r)), &msgs); err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].Version != 1 || msgs[1].Version != 2 {
		t.Fatalf("appended = %+v", msgs)
	}

	r = callTool(t, srv, "list_messages", map[string]interface{}{
		"context_id": c.ID,
		"limit":      1,
		"order":      "desc",
	})
	if r.IsError {
		t.Fatalf("list_messages failed: %s", resultText(r))
	}
	var page models.Page
	if err := json.Unmarshal([]byte(resultText(r)), &page); err != nil {
		t.Fatal(err)
	}
	if len(page.Data) != 1 || page.Data[0].Version != 2 || !page.HasMore {
		t.Fatalf("page = %+v", page)
	}
}

func TestAppendMessagesValidation(t *testing.T) {
	srv := testServer(t)
	c := createContext(t, srv)

	cases := map[string]string{
		"not json":    `{"role":"user"}`,
		"empty array": `[]`,
		"bad role":    `[{"role":"robot","content":"x"}]`,
		"no content":  `[{"role":"user","content":""}]`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			r := callTool(t, srv, "append_messages", map[string]interface{}{
				"context_id": c.ID,
				"messages":   raw,
			})
			if !r.IsError {
				t.Errorf("expected error for %s", name)
			}
		})
	}
}

func TestGetWindow(t *testing.T) {
	srv := testServer(t)
	c := createContext(t, srv)

	r := callTool(t, srv, "append_messages", map[string]interface{}{
		"context_id": c.ID,
		"messages":   `[{"role":"user","content":"a","tokenCount":10},{"role":"assistant","content":"b","tokenCount":20},{"role":"user","content":"c","tokenCount":15},{"role":"assistant","content":"d","tokenCount":25}]`,
	})
	if r.IsError {
		t.Fatalf("append failed: %s", resultText(r))
	}

	r = callTool(t, srv, "get_window", map[string]interface{}{
		"context_id": c.ID,
		"budget":     40,
	})
	if r.IsError {
		t.Fatalf("get_window failed: %s", resultText(r))
	}
	var window []models.Message
	if err := json.Unmarshal([]byte(resultText(r)), &window); err != nil {
		t.Fatal(err)
	}
	if len(window) != 2 || window[0].Version != 3 {
		t.Fatalf("window = %+v", window)
	}
}

func TestGetWindowBadBudget(t *testing.T) {
	srv := testServer(t)
	c := createContext(t, srv)

	r := callTool(t, srv, "get_window", map[string]interface{}{
		"context_id": c.ID,
		"budget":     0,
	})
	if !r.IsError || !strings.Contains(resultText(r), "positive") {
		t.Errorf("expected positive-budget error, got %q", resultText(r))
	}
}

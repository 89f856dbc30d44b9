package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/decksmith/internal/deckservice"
	"github.com/starford/decksmith/internal/media"
	"github.com/starford/decksmith/internal/models"
	"github.com/starford/decksmith/internal/testutil"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	svc := deckservice.NewService(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return New(svc, t.TempDir(), media.ModeReferenced)
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so the handlers are
	// invoked directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "extract_deck":
		result, err = srv.extractDeck(ctx, req)
	case "fetch_deck":
		result, err = srv.fetchDeck(ctx, req)
	case "list_decks":
		result, err = srv.listDecks(ctx, req)
	case "list_notes":
		result, err = srv.listNotes(ctx, req)
	case "resolve_note":
		result, err = srv.resolveNote(ctx, req)
	case "count_notes":
		result, err = srv.countNotes(ctx, req)
	case "get_output_layout":
		result, err = srv.getOutputLayout(ctx, req)
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

// extract runs extract_deck on the basic deck and returns its content hash.
func extract(t *testing.T, srv *Server) string {
	t.Helper()
	path := testutil.WriteArchive(t, testutil.BasicDeck(testutil.LayoutModern))
	r := callTool(t, srv, "extract_deck", map[string]interface{}{"archive_path": path})
	if r.IsError {
		t.Fatalf("extract_deck failed: %s", resultText(r))
	}
	var res deckservice.ExtractResult
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatal(err)
	}
	return res.ContentHash
}

func TestExtractAndListNotes(t *testing.T) {
	srv := testServer(t)
	hash := extract(t, srv)

	r := callTool(t, srv, "list_decks", map[string]interface{}{})
	if !strings.Contains(resultText(r), hash) {
		t.Errorf("list_decks = %q, want %s", resultText(r), hash)
	}

	r = callTool(t, srv, "list_notes", map[string]interface{}{"hash": hash})
	var notes []models.NoteView
	if err := json.Unmarshal([]byte(resultText(r)), &notes); err != nil {
		t.Fatalf("list_notes: %v (%s)", err, resultText(r))
	}
	if len(notes) != 2 || notes[0].FieldNames[0] != "Front" {
		t.Errorf("notes = %+v", notes)
	}

	r = callTool(t, srv, "count_notes", map[string]interface{}{"hash": hash})
	if resultText(r) != "2" {
		t.Errorf("count_notes = %q, want 2", resultText(r))
	}
}

func TestResolveNote(t *testing.T) {
	srv := testServer(t)
	hash := extract(t, srv)

	r := callTool(t, srv, "resolve_note", map[string]interface{}{"hash": hash, "note_id": float64(2)})
	var note models.ResolvedNote
	if err := json.Unmarshal([]byte(resultText(r)), &note); err != nil {
		t.Fatalf("resolve_note: %v (%s)", err, resultText(r))
	}
	if note.Ordinal != 1 || note.QuestionFormat != "{{Back}}" {
		t.Errorf("resolved = %+v", note)
	}

	r = callTool(t, srv, "resolve_note", map[string]interface{}{"hash": hash, "note_id": float64(404)})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}

func TestToolArgumentErrors(t *testing.T) {
	srv := testServer(t)

	if r := callTool(t, srv, "list_notes", map[string]interface{}{"hash": "../etc"}); !r.IsError {
		t.Error("expected error for invalid hash")
	}
	if r := callTool(t, srv, "extract_deck", map[string]interface{}{}); !r.IsError {
		t.Error("expected error for missing archive_path")
	}
	if r := callTool(t, srv, "extract_deck", map[string]interface{}{"archive_path": "x", "media_mode": "some"}); !r.IsError {
		t.Error("expected error for bad media_mode")
	}
	if r := callTool(t, srv, "count_notes", map[string]interface{}{"hash": strings.Repeat("0", 64)}); resultText(r) != "0" {
		t.Errorf("count of unknown deck = %q, want 0", resultText(r))
	}
}

func TestFetchDeck_DataURI(t *testing.T) {
	srv := testServer(t)
	data := testutil.BuildArchive(t, testutil.BasicDeck(testutil.LayoutModern))
	uri := "data:application/zip;base64," + base64.StdEncoding.EncodeToString(data)

	r := callTool(t, srv, "fetch_deck", map[string]interface{}{"url": uri, "media_mode": "full"})
	if r.IsError {
		t.Fatalf("fetch_deck failed: %s", resultText(r))
	}
	var res deckservice.ExtractResult
	_ = json.Unmarshal([]byte(resultText(r)), &res)
	if len(res.MediaFiles) != 3 {
		t.Errorf("media files = %v, want 3", res.MediaFiles)
	}
}

func TestFetchDeck_Rejections(t *testing.T) {
	srv := testServer(t)

	notZip := "data:application/zip;base64," + base64.StdEncoding.EncodeToString([]byte("hello"))
	if r := callTool(t, srv, "fetch_deck", map[string]interface{}{"url": notZip}); !r.IsError {
		t.Error("expected error for non-zip payload")
	}
	if r := callTool(t, srv, "fetch_deck", map[string]interface{}{"url": "data:image/png;base64,AAAA"}); !r.IsError {
		t.Error("expected error for wrong MIME type")
	}
	if r := callTool(t, srv, "fetch_deck", map[string]interface{}{"url": "ftp://example.com/deck.apkg"}); !r.IsError {
		t.Error("expected error for unsupported scheme")
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("PK\x03\x04"))
	}))
	defer ts.Close()
	r := callTool(t, srv, "fetch_deck", map[string]interface{}{"url": ts.URL + "/deck.apkg"})
	if !r.IsError || !strings.Contains(resultText(r), "loopback") {
		t.Errorf("loopback fetch = %q, want blocked", resultText(r))
	}
}

func TestGetOutputLayout(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "get_output_layout", map[string]interface{}{})
	if !strings.Contains(resultText(r), "collection.sqlite") {
		t.Error("layout does not mention the store file")
	}
}

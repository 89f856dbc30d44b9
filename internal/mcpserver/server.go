// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes decksmith tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/decksmith/internal/deckservice"
	"github.com/starford/decksmith/internal/media"
	"github.com/starford/decksmith/internal/models"
)

// Server wraps the MCP server with decksmith tools.
type Server struct {
	mcp     *server.MCPServer
	svc     *deckservice.Service
	baseDir string
	mode    media.Mode
}

// New creates a new MCP server with all decksmith tools registered. Decks
// are extracted into baseDir and addressed by content hash afterwards.
func New(svc *deckservice.Service, baseDir string, mode media.Mode) *Server {
	s := &Server{svc: svc, baseDir: baseDir, mode: mode}

	s.mcp = server.NewMCPServer(
		"decksmith",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("extract_deck",
		mcp.WithDescription("Extract a flashcard archive (.apkg/.colpkg) from the local filesystem. "+
			"Returns the content hash used by every other tool."),
		mcp.WithString("archive_path", mcp.Required(), mcp.Description("Path to the archive file")),
		mcp.WithString("media_mode", mcp.Description("referenced (default) or full"), mcp.Enum("referenced", "full")),
	), s.extractDeck)

	s.mcp.AddTool(mcp.NewTool("fetch_deck",
		mcp.WithDescription("Download a flashcard archive from an http(s) URL or a base64 data URI and extract it."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data:application/zip;base64,... URI")),
		mcp.WithString("media_mode", mcp.Description("referenced (default) or full"), mcp.Enum("referenced", "full")),
	), s.fetchDeck)

	s.mcp.AddTool(mcp.NewTool("list_decks",
		mcp.WithDescription("List the content hashes of extracted decks."),
	), s.listDecks)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List every note of an extracted deck with its notetype name and field names."),
		mcp.WithString("hash", mcp.Required(), mcp.Description("Deck content hash")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("resolve_note",
		mcp.WithDescription("Resolve a note's first card to its question/answer templates and stylesheet."),
		mcp.WithString("hash", mcp.Required(), mcp.Description("Deck content hash")),
		mcp.WithNumber("note_id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithString("variant", mcp.Description("Container variant label, echoed in the result")),
	), s.resolveNote)

	s.mcp.AddTool(mcp.NewTool("count_notes",
		mcp.WithDescription("Count the notes of an extracted deck."),
		mcp.WithString("hash", mcp.Required(), mcp.Description("Deck content hash")),
	), s.countNotes)

	s.mcp.AddTool(mcp.NewTool("get_output_layout",
		mcp.WithDescription("Describe the on-disk layout of an extracted deck."),
	), s.getOutputLayout)

	s.mcp.AddResource(
		mcp.NewResource(layoutURI, "Output Layout",
			mcp.WithResourceDescription("On-disk layout of extracted decks."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readOutputLayoutResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) mediaMode(req mcp.CallToolRequest) (media.Mode, error) {
	mode := media.Mode(req.GetString("media_mode", ""))
	if mode == "" {
		return s.mode, nil
	}
	if !mode.Valid() {
		return "", fmt.Errorf("unknown media_mode %q", mode)
	}
	return mode, nil
}

// storePath returns the store of the deck named by the "hash" argument.
func (s *Server) storePath(req mcp.CallToolRequest) (string, error) {
	hash, err := req.RequireString("hash")
	if err != nil {
		return "", err
	}
	if !deckservice.ValidHash(hash) {
		return "", fmt.Errorf("invalid deck hash: %q", hash)
	}
	return deckservice.StorePath(s.baseDir, hash), nil
}

func (s *Server) extractDeck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	archivePath, err := req.RequireString("archive_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	mode, err := s.mediaMode(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Extract(ctx, archivePath, s.baseDir, mode)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) listDecks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hashes, err := deckservice.Extracted(s.baseDir)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if hashes == nil {
		hashes = []string{}
	}
	return jsonResult(hashes)
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	store, err := s.storePath(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	list, err := s.svc.ListNotes(ctx, store)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(list.Notes)
}

func (s *Server) resolveNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	store, err := s.storePath(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := req.RequireFloat("note_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	variant := models.Variant(req.GetString("variant", ""))
	note, err := s.svc.ResolveNote(ctx, store, int64(id), variant)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(note)
}

func (s *Server) countNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	store, err := s.storePath(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%d", s.svc.CountNotes(ctx, store))), nil
}

func (s *Server) getOutputLayout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(OutputLayout), nil
}

func (s *Server) readOutputLayoutResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      layoutURI,
			MIMEType: "text/markdown",
			Text:     OutputLayout,
		},
	}, nil
}

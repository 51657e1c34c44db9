// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes arbor search tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/arbor/internal/autocomplete"
	"github.com/starford/arbor/internal/noteservice"
	"github.com/starford/arbor/internal/search"
)

const querySyntaxURI = "arbor://query-syntax"

// Server wraps the MCP server with arbor tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all arbor tools registered.
func New(svc *noteservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"arbor",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Search notes with the arbor query language. "+
			"Read the syntax first via the get_query_syntax tool or the "+querySyntaxURI+" resource."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
		mcp.WithBoolean("fastSearch", mcp.Description("Skip content and fuzzy matching")),
		mcp.WithString("ancestorNoteId", mcp.Description("Only search this note and its descendants")),
		mcp.WithBoolean("includeHidden", mcp.Description("Include notes in the hidden subtree")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("autocomplete_notes",
		mcp.WithDescription("Suggest notes for a partially typed title. An empty query returns recently visited notes."),
		mcp.WithString("query", mcp.Description("Typed text")),
		mcp.WithString("activeNoteId", mcp.Description("Note to leave out of recent notes")),
		mcp.WithString("hoistedNoteId", mcp.Description("Only suggest notes in this subtree")),
	), s.autocompleteNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note with its path, children and content."),
		mcp.WithString("noteId", mcp.Required(), mcp.Description("Note id")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("notes_with_label",
		mcp.WithDescription("List notes that carry a label, directly or through inheritance."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Label name")),
		mcp.WithString("value", mcp.Description("Exact label value; omit to match any value")),
	), s.notesWithLabel)

	s.mcp.AddTool(mcp.NewTool("effective_attributes",
		mcp.WithDescription("List a note's attributes including those from templates and ancestors."),
		mcp.WithString("noteId", mcp.Required(), mcp.Description("Note id")),
	), s.effectiveAttributes)

	s.mcp.AddTool(mcp.NewTool("get_query_syntax",
		mcp.WithDescription("Returns the arbor query language reference."),
	), s.getQuerySyntax)

	s.mcp.AddResource(
		mcp.NewResource(querySyntaxURI, "Query Syntax",
			mcp.WithResourceDescription("Reference for the arbor search query language."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readQuerySyntaxResource,
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

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, _, err := s.svc.Search(ctx, query, search.Options{
		FastSearch:     req.GetBool("fastSearch", false),
		AncestorNoteID: req.GetString("ancestorNoteId", ""),
		IncludeHidden:  req.GetBool("includeHidden", false),
		Limit:          req.GetInt("limit", 20),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) autocompleteNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, _, err := s.svc.Autocomplete(ctx, autocomplete.Request{
		Query:         req.GetString("query", ""),
		ActiveNoteID:  req.GetString("activeNoteId", ""),
		HoistedNoteID: req.GetString("hoistedNoteId", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(out)
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("noteId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.GetNote(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(note)
}

func (s *Server) notesWithLabel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var value *string
	if v, ok := req.GetArguments()["value"].(string); ok {
		value = &v
	}
	notes, err := s.svc.NotesWithLabel(ctx, name, value)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(notes)
}

func (s *Server) effectiveAttributes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("noteId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	attrs, err := s.svc.Attributes(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(attrs)
}

func (s *Server) getQuerySyntax(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(QuerySyntax), nil
}

func (s *Server) readQuerySyntaxResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      querySyntaxURI,
			MIMEType: "text/markdown",
			Text:     QuerySyntax,
		},
	}, nil
}

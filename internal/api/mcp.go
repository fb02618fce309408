package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/kashi/internal/pipeline"
	"github.com/kalambet/kashi/internal/songs"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Pipeline *pipeline.Pipeline
	Playlist []songs.Ref
	Version  string
}

// NewMCPServer creates an MCP server with the kashi tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"kashi",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("kashi: Japanese song lyrics with furigana readings over every kanji."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_songs",
			mcp.WithDescription("List the playlist with whether each song's lyrics are already cached."),
		),
		mcpListSongs(deps),
	)

	s.AddTool(
		mcp.NewTool("get_lyrics",
			mcp.WithDescription("Get HTML lyrics with <ruby> furigana for a song, from cache or freshly generated."),
			mcp.WithString("query", mcp.Description(`Song query key, "title - artist"`)),
			mcp.WithString("title", mcp.Description("Song title (when query is not given)")),
			mcp.WithString("artist", mcp.Description("Artist name (when query is not given)")),
		),
		mcpGetLyrics(deps),
	)

	s.AddTool(
		mcp.NewTool("regenerate_lyrics",
			mcp.WithDescription("Drop the cached lyrics for a song and generate them again."),
			mcp.WithString("query", mcp.Description(`Song query key, "title - artist"`), mcp.Required()),
		),
		mcpRegenerateLyrics(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"kashi://playlist",
			"Playlist",
			mcp.WithResourceDescription("The song playlist as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourcePlaylist(deps),
	)

	return s
}

func mcpListSongs(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resolver := deps.Pipeline.Resolver()
		out := make([]songResponse, len(deps.Playlist))
		for i, ref := range deps.Playlist {
			out[i] = songResponse{
				Title:    ref.Title,
				Artist:   ref.Artist,
				QueryKey: ref.QueryKey,
				Cached:   resolver.Contains(ctx, ref),
			}
		}
		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal songs: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResolveRef(deps MCPDeps, req mcp.CallToolRequest) (songs.Ref, error) {
	if q := req.GetString("query", ""); q != "" {
		ref, ok := songs.FromQuery(deps.Playlist, q)
		if !ok {
			return songs.Ref{}, fmt.Errorf("invalid song query %q", q)
		}
		return ref, nil
	}
	title := req.GetString("title", "")
	if title == "" {
		return songs.Ref{}, fmt.Errorf("query or title is required")
	}
	return songs.NewRef(title, req.GetString("artist", ""))
}

func mcpGetLyrics(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ref, err := mcpResolveRef(deps, req)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		res, err := deps.Pipeline.Fetch(ctx, ref, nil)
		if err != nil {
			return mcpError(fmt.Sprintf("lyrics unavailable: %v", err)), nil
		}
		return mcpLyrics(res)
	}
}

func mcpRegenerateLyrics(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		ref, ok := songs.FromQuery(deps.Playlist, q)
		if !ok {
			return mcpError(fmt.Sprintf("invalid song query %q", q)), nil
		}
		res, err := deps.Pipeline.Regenerate(ctx, ref, nil)
		if err != nil {
			return mcpError(fmt.Sprintf("regeneration failed: %v", err)), nil
		}
		return mcpLyrics(res)
	}
}

func mcpLyrics(res pipeline.Result) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(toLyricsResponse(res))
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal lyrics: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpResourcePlaylist(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Playlist)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal playlist: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// apiResponse mirrors the tokscrape API envelope.
type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func main() {
	apiURL := strings.TrimRight(os.Getenv("TOKSCRAPE_API_URL"), "/")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8000"
	}

	s := server.NewMCPServer(
		"tokscrape",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	// Extractions drive a real browser with retries; allow for the full budget.
	client := &http.Client{Timeout: 5 * time.Minute}

	profileTool := mcp.NewTool("get_profile",
		mcp.WithDescription("Fetch a public TikTok profile: nickname, bio, avatar, verification and follower/following/like/video counts."),
		mcp.WithString("username",
			mcp.Required(),
			mcp.Description("TikTok username, with or without the leading @"),
		),
	)
	s.AddTool(profileTool, handleGetProfile(client, apiURL))

	videoTool := mcp.NewTool("get_video",
		mcp.WithDescription("Fetch a public TikTok video: description, engagement counts, music, author and hashtags."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Full TikTok video URL"),
		),
	)
	s.AddTool(videoTool, handleGetVideo(client, apiURL))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func handleGetProfile(client *http.Client, apiURL string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		username, err := request.RequireString("username")
		if err != nil {
			return mcp.NewToolResultError("username is required"), nil
		}
		username = strings.TrimPrefix(strings.TrimSpace(username), "@")
		return apiGet(ctx, client, apiURL+"/api/profile/"+url.PathEscape(username)), nil
	}
}

func handleGetVideo(client *http.Client, apiURL string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		videoURL, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}
		return apiGet(ctx, client, apiURL+"/api/video?url="+url.QueryEscape(videoURL)), nil
	}
}

// apiGet calls the tokscrape API and turns the envelope into a tool result.
func apiGet(ctx context.Context, client *http.Client, endpoint string) *mcp.CallToolResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create request: %v", err))
	}

	resp, err := client.Do(req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API request failed: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read response: %v", err))
	}

	var out apiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse response (HTTP %d): %v", resp.StatusCode, err))
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = fmt.Sprintf("request failed with HTTP %d", resp.StatusCode)
		}
		return mcp.NewToolResultError(msg)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, out.Data, "", "  "); err != nil {
		// Fall back to raw JSON.
		return mcp.NewToolResultText(string(out.Data))
	}
	return mcp.NewToolResultText(pretty.String())
}

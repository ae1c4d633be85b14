package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/pagerender/models"
)

func main() {
	apiURL := os.Getenv("PAGERENDER_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("PAGERENDER_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "PAGERENDER_API_KEY is required")
		os.Exit(1)
	}

	s := newServer(apiURL, apiKey, &http.Client{Timeout: 130 * time.Second})

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func newServer(apiURL, apiKey string, client *http.Client) *server.MCPServer {
	s := server.NewMCPServer(
		"pagerender",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	renderURLTool := mcp.NewTool("render_url",
		mcp.WithDescription("Render a web page in headless Chromium, running its JavaScript, and return the resulting document with its status code. Optionally wait for an element or evaluate a script first."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the web page to render"),
		),
		mcp.WithString("output_format",
			mcp.Description("Content format: 'html' (default, the rendered page), 'markdown' or 'text'"),
			mcp.Enum("html", "markdown", "text"),
		),
		mcp.WithString("extract_mode",
			mcp.Description("Content extraction: 'raw' (default, whole page), 'readability' (main article), 'pruning' or 'auto'"),
			mcp.Enum("raw", "readability", "pruning", "auto"),
		),
		mcp.WithString("wait_for",
			mcp.Description("CSS selector or XPath expression that must match before the page is captured"),
		),
		mcp.WithString("script",
			mcp.Description("JavaScript function evaluated in the page before capture, e.g. '() => document.title'. Its result is returned."),
		),
		mcp.WithNumber("delay_ms",
			mcp.Description("Milliseconds to wait after the page loads (max 60000)"),
		),
		mcp.WithString("css_selector",
			mcp.Description("Keep only elements matching this CSS selector"),
		),
		mcp.WithBoolean("block_resources",
			mcp.Description("Block images, fonts, media and known ad domains while rendering"),
		),
	)
	s.AddTool(renderURLTool, handleRenderURL(apiURL, apiKey, client))

	return s
}

// apiPost sends a POST request to the render API and returns the response body.
func apiPost(ctx context.Context, client *http.Client, apiURL, apiKey, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

func handleRenderURL(apiURL, apiKey string, client *http.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		payload := models.RenderRequest{
			URL:          url,
			OutputFormat: request.GetString("output_format", ""),
			ExtractMode:  request.GetString("extract_mode", ""),
			WaitFor:      request.GetString("wait_for", ""),
			Script:       request.GetString("script", ""),
			DelayMs:      request.GetInt("delay_ms", 0),
			CSSSelector:  request.GetString("css_selector", ""),
		}
		if request.GetBool("block_resources", false) {
			payload.Intercept = true
			payload.Interceptor = "block"
		}

		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/render", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("render request failed: %v", err)), nil
		}

		var resp models.RenderResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}

		if !resp.Success {
			errMsg := "render failed"
			if resp.Error != nil {
				errMsg = fmt.Sprintf("[%s] %s", resp.Error.Code, resp.Error.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		return mcp.NewToolResultText(formatResult(&resp)), nil
	}
}

// formatResult renders a response as a header block followed by the content.
func formatResult(resp *models.RenderResponse) string {
	var sb strings.Builder
	if resp.Metadata.Title != "" {
		fmt.Fprintf(&sb, "Title: %s\n", resp.Metadata.Title)
	}
	fmt.Fprintf(&sb, "Source: %s\n", resp.FinalURL)
	fmt.Fprintf(&sb, "Status: %d", resp.StatusCode)
	if resp.Synthetic {
		sb.WriteString(" (navigation timed out, partial page)")
	}
	sb.WriteString("\n")

	if resp.ScriptResult != nil {
		b, err := json.Marshal(resp.ScriptResult)
		if err != nil {
			b = []byte(fmt.Sprint(resp.ScriptResult))
		}
		fmt.Fprintf(&sb, "Script result: %s\n", b)
	}

	sb.WriteString("\n")
	sb.WriteString(resp.Content)

	if t := resp.Tokens; t.CleanedEstimate > 0 {
		fmt.Fprintf(&sb, "\n\n---\nTokens: %d (saved %.0f%% from original %d)",
			t.CleanedEstimate, t.SavingsPercent, t.OriginalEstimate)
	}
	return sb.String()
}

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/rpschat/chat"
	"github.com/wricardo/rpschat/rps"
	"github.com/wricardo/rpschat/store"
)

const (
	Name    = "rpschat"
	Version = "1.0.0"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		Name,
		Version,
		server.WithToolCapabilities(true),
		server.WithInstructions(`rpschat - MCP Interface

Read-only view of a live chat and rock-paper-scissors server.
This is a thin client that proxies all requests to the REST API server.

AVAILABLE TOOLS:
- list_users: Everyone who ever connected, with online status
- list_rooms: Public rooms with members and message counts
- list_games: Every tournament with scores and state
- get_game: One tournament in detail
- hall_of_fame: Tournament winners ranked by titles
- game_rules: How a tournament is played and scored`),
	)

	c.registerTools()
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_users",
		Description: "List every known user and whether they are online",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListUsers)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_rooms",
		Description: "List public rooms with their members",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListRooms)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_games",
		Description: "List rock-paper-scissors tournaments",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"active_only": map[string]interface{}{
					"type":        "boolean",
					"description": "Hide finished games",
				},
			},
		},
	}, c.handleListGames)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_game",
		Description: "Get one tournament in detail",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"game_id": map[string]interface{}{
					"type":        "string",
					"description": "Game ID",
				},
			},
			Required: []string{"game_id"},
		},
	}, c.handleGetGame)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "hall_of_fame",
		Description: "Tournament winners ranked by number of titles",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "number",
					"description": "Maximum entries to return (default 10)",
				},
			},
		},
	}, c.handleHallOfFame)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "game_rules",
		Description: "Explain how a tournament is played and scored",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleGameRules)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// ServeHTTP answers one JSON-RPC message per POST
func (c *Client) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	response := c.mcpServer.HandleMessage(r.Context(), body)
	if response == nil {
		// Notifications have no reply
		w.WriteHeader(http.StatusAccepted)
		return
	}

	responseData, err := json.Marshal(response)
	if err != nil {
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(responseData)
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

// Tool handlers

func (c *Client) handleListUsers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count int         `json:"count"`
		Users []chat.User `json:"users"`
	}
	if err := c.apiCall(ctx, http.MethodGet, "/api/users", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatUsers(response.Users)), nil
}

func (c *Client) handleListRooms(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count int               `json:"count"`
		Rooms []chat.PublicRoom `json:"rooms"`
	}
	if err := c.apiCall(ctx, http.MethodGet, "/api/rooms", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatRooms(response.Rooms)), nil
}

func (c *Client) handleListGames(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	activeOnly, _ := args["active_only"].(bool)

	var response struct {
		Count int         `json:"count"`
		Games []rps.State `json:"games"`
	}
	if err := c.apiCall(ctx, http.MethodGet, "/api/games", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var games []rps.State
	for _, g := range response.Games {
		if activeOnly && g.GameOver {
			continue
		}
		games = append(games, g)
	}

	result := fmt.Sprintf("Games (%d):\n\n", len(games))
	for _, g := range games {
		result += fmt.Sprintf("- %s %q host=%s players=%d %s\n",
			g.ID, g.Name, g.Host, len(g.PlayerIDs), gameStatus(g))
	}
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleGetGame(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	gameID, _ := args["game_id"].(string)
	if gameID == "" {
		return mcp.NewToolResultError("game_id is required"), nil
	}

	var state rps.State
	if err := c.apiCall(ctx, http.MethodGet, "/api/games/"+url.PathEscape(gameID), nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatGame(state)), nil
}

func (c *Client) handleHallOfFame(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	limit := 10
	if l, ok := args["limit"].(float64); ok && l >= 1 {
		limit = int(l)
	}

	var response struct {
		Entries []store.HallOfFameEntry `json:"entries"`
	}
	if err := c.apiCall(ctx, http.MethodGet, fmt.Sprintf("/api/hall-of-fame?limit=%d", limit), nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if len(response.Entries) == 0 {
		return mcp.NewToolResultText("Hall of Fame is empty. No tournament has been won yet."), nil
	}
	result := "Hall of Fame:\n\n"
	for i, e := range response.Entries {
		result += fmt.Sprintf("%2d. %s - %d title(s)\n", i+1, e.UserID, e.Score)
	}
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleGameRules(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(gameRules), nil
}

const gameRules = `Rock-Paper-Scissors Tournament Rules

SETUP:
A host creates a game and invites players. The host is always a player.
Invited players join over their websocket connection.

THROWS:
rock (r), paper (p), scissors (s), special (x).
Rock beats scissors, scissors beat paper, paper beats rock.
Special beats every other throw and ties with special.

ROUNDS:
Every connected player who is not excluded throws once. When the last
throw arrives, every pair of throws is compared: +1 to the winner, -1 to
the loser.
- Everybody tied on top: draw, the round is replayed.
- Several players tied on top: everyone else is excluded until the tie is
  broken.
- One player on top: they win the round, exclusions are lifted.

VICTORY:
The first player to win gg_score rounds wins the tournament and enters
the Hall of Fame.`

func formatUsers(users []chat.User) string {
	online := 0
	for _, u := range users {
		if u.Connected {
			online++
		}
	}
	result := fmt.Sprintf("Users (%d, %d online):\n\n", len(users), online)
	for _, u := range users {
		status := "offline"
		if u.Connected {
			status = "online"
		}
		result += fmt.Sprintf("- %s (%s) %s\n", u.Username, u.ID, status)
	}
	return result
}

func formatRooms(rooms []chat.PublicRoom) string {
	result := fmt.Sprintf("Rooms (%d):\n\n", len(rooms))
	for _, r := range rooms {
		result += fmt.Sprintf("- %s %q members=%d messages=%d\n", r.ID, r.Name, len(r.Users), len(r.Messages))
	}
	return result
}

func gameStatus(g rps.State) string {
	if g.GameOver {
		return "finished"
	}
	return fmt.Sprintf("in progress (%d/%d connected)", len(g.Connections), len(g.PlayerIDs))
}

func formatGame(g rps.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Game %s %q\n", g.ID, g.Name)
	fmt.Fprintf(&b, "Host: %s\n", g.Host)
	fmt.Fprintf(&b, "Status: %s\n", gameStatus(g))
	fmt.Fprintf(&b, "First to %d round wins\n", g.GGScore)
	if g.FastMode {
		b.WriteString("Fast mode: on\n")
	}

	players := make([]string, len(g.PlayerIDs))
	copy(players, g.PlayerIDs)
	sort.SliceStable(players, func(i, j int) bool {
		return g.Scores[players[i]] > g.Scores[players[j]]
	})

	connected := make(map[string]bool, len(g.Connections))
	for _, p := range g.Connections {
		connected[p] = true
	}
	excluded := make(map[string]bool, len(g.Excluded))
	for _, p := range g.Excluded {
		excluded[p] = true
	}
	submitted := make(map[string]bool, len(g.Submitted))
	for _, p := range g.Submitted {
		submitted[p] = true
	}

	b.WriteString("\nScores:\n")
	for _, p := range players {
		var tags []string
		if !connected[p] {
			tags = append(tags, "not joined")
		}
		if excluded[p] {
			tags = append(tags, "excluded")
		}
		if submitted[p] {
			tags = append(tags, "thrown")
		}
		line := fmt.Sprintf("  %s: %d", p, g.Scores[p])
		if len(tags) > 0 {
			line += " [" + strings.Join(tags, ", ") + "]"
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

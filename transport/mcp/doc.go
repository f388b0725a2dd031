// Package mcp provides a Model Context Protocol server for rpschat.
//
// The mcp package implements:
//   - MCP server for AI agent integration
//   - Read-only tools over the live chat and tournament state
//   - Stdio and HTTP transport modes
//
// MCP Tools:
//
// The package exposes the following tools for AI agents:
//   - list_users: Known users with online status
//   - list_rooms: Public rooms with members
//   - list_games: Tournaments, optionally only active ones
//   - get_game: One tournament with its scoreboard
//   - hall_of_fame: Tournament winners ranked by titles
//   - game_rules: Tournament rules
//
// The Client never touches server state directly. Every tool calls the
// REST API, so the same client works in-process behind POST /mcp and as a
// separate stdio process pointed at a running server.
//
// Usage:
//
//	// HTTP mode
//	client := mcp.NewClient("http://localhost:8080")
//	router.Handle("/mcp", client)
//
//	// Stdio mode
//	server.ServeStdio(client.GetMCPServer())
package mcp

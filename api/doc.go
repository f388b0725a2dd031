// Package api provides the HTTP surface of rpschat.
//
// The api package implements:
//   - Read-only REST endpoints over live chat and tournament state
//   - The hall of fame read from the database
//   - Token-checked websocket upgrades
//   - Mounting of the MCP endpoint
//
// Endpoints:
//
//   - GET /api/health - Liveness plus live connection count
//   - GET /api/users - Known users (?online=true for connected only)
//   - GET /api/rooms - Public rooms
//   - GET /api/rooms/{id} - One room with its messages
//   - GET /api/games - Tournaments
//   - GET /api/games/{id} - One tournament
//   - GET /api/hall-of-fame - Winners by titles (?limit=N, at most 100)
//   - GET /ws - Websocket upgrade
//   - POST /mcp - MCP JSON-RPC
//
// Authentication:
//
// /ws requires a token, taken from the Authorization cookie, the token
// query parameter or an "Authorization: Bearer" header. A missing, invalid
// or expired token is answered with 401 before any upgrade.
package api

// Package websocket provides the websocket transport for chat and rps.
//
// The package implements:
//   - Upgrading authenticated HTTP requests (subprotocol "ezSocket")
//   - One Supervisor per connection, bridging it to the chat router and
//     the rps engine
//   - Heartbeat based liveness checks
//   - Exactly-once disconnect announcement
//
// Architecture:
//
// Each connection is handled by two goroutines. The read pump decodes
// inbound frames and calls the router or the engine. join and rps
// init/join are request/response and suspend only this connection's read
// pump; everything else is fire-and-forget. The write pump drains the
// connection's mailbox, the bounded queue the router and the engine push
// frames into, and runs the heartbeat.
//
// Message Protocol:
//
// Frames are JSON envelopes, see package protocol:
//   - Incoming: {"header": "chat_message", "data": {"receiver_id": "...", "content": "..."}}
//   - Outgoing: {"header": "read", "data": [ ...messages ]}
//
// Identity fields inside inbound frames (sender_id, host) are always
// replaced with the authenticated session id.
//
// Usage:
//
//	server := websocket.NewServer(router, engine, websocket.Options{})
//	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
//		server.ServeWS(w, r, identity)
//	})
//
// Connection Lifecycle:
//
// 1. Client connects with a token, identity is verified upstream
// 2. Session announced to router and engine
// 3. Router sends session, users and rooms; engine sends games
// 4. Client sends frames, receives pushes
// 5. Any of close, read error, malformed frame, unknown header, unknown
// game or heartbeat timeout triggers a single disconnect
//
// Heartbeat:
//
// Every HeartbeatInterval the supervisor pings the peer. Any frame, ping or
// pong counts as activity; after ClientTimeout without activity the
// connection is dropped.
package websocket

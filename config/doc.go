// Package config loads the server configuration.
//
// Settings come from the environment, optionally seeded from a .env file:
//
//	RPSCHAT_ADDR                 listen address (":8080")
//	RPSCHAT_HEARTBEAT_INTERVAL   ping period ("5s")
//	RPSCHAT_CLIENT_TIMEOUT       silence before a connection is dropped ("10s")
//	RPSCHAT_MAILBOX_SIZE         outbound frames buffered per connection (256)
//	RPSCHAT_ALLOWED_ORIGINS      comma-separated websocket origins (any when empty)
//	RPSCHAT_DATABASE_PATH        SQLite file (XDG data home when empty)
//	RPSCHAT_WRITE_QUEUE          pending durable writes before dropping (1024)
//	RPSCHAT_JWT_SECRET           HS256 signing secret (required)
//	RPSCHAT_JWT_ISSUER           expected token issuer ("rpschat")
//	RPSCHAT_GAME_NAMES           comma-separated game name pool
//	RPSCHAT_DEFAULT_GG_SCORE     round wins that end a game (3)
//	RPSCHAT_LOG_FORMAT           "text" or "json"
//	RPSCHAT_DEBUG                debug logging
//	NGROK_ENABLED, NGROK_AUTHTOKEN, NGROK_DOMAIN
//
// Command-line flags override whatever Load returns.
package config

// Command rpschat starts the chat and rock-paper-scissors server.
//
// It supports three modes:
//  1. "serve" (default) – runs the HTTP server exposing REST API, WebSocket, and an /mcp HTTP endpoint
//  2. "mcp" – runs an MCP stdio server against a running server, or an internal one if none answers
//  3. "token" – signs a development token for a user id
//
// Configuration comes from RPSCHAT_* environment variables (optionally from
// a .env file); flags override them. An ngrok tunnel can be enabled for
// external access during development.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
	"golang.org/x/sync/errgroup"

	"github.com/wricardo/rpschat/api"
	"github.com/wricardo/rpschat/auth"
	"github.com/wricardo/rpschat/chat"
	"github.com/wricardo/rpschat/config"
	"github.com/wricardo/rpschat/rps"
	"github.com/wricardo/rpschat/store"
	"github.com/wricardo/rpschat/transport/mcp"
	"github.com/wricardo/rpschat/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "rpschat"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
}

// newCommand builds the command tree. Flags on the root apply to every
// subcommand.
func newCommand() *cli.Command {
	return &cli.Command{
		Name:    AppName,
		Usage:   "real-time chat and rock-paper-scissors tournaments over websockets",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "optional .env file loaded before reading the environment"},
			&cli.StringFlag{Name: "addr", Usage: "HTTP listen address (overrides RPSCHAT_ADDR)"},
			&cli.StringFlag{Name: "db", Usage: "SQLite database path (overrides RPSCHAT_DATABASE_PATH)"},
			&cli.StringFlag{Name: "log-format", Usage: "text or json (overrides RPSCHAT_LOG_FORMAT)"},
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
			&cli.BoolFlag{Name: "ngrok", Usage: "enable ngrok tunnel"},
			&cli.StringFlag{Name: "ngrok-auth", Usage: "ngrok auth token (or NGROK_AUTHTOKEN)"},
			&cli.StringFlag{Name: "ngrok-domain", Usage: "custom ngrok domain (optional)"},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP server with API, WebSocket, and MCP endpoint",
				Action: serve,
			},
			{
				Name:  "mcp",
				Usage: "run an MCP stdio server",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "api-url", Value: "http://localhost:8080", Usage: "running server to proxy; an internal one starts if it does not answer"},
				},
				Action: runStdioMCP,
			},
			{
				Name:  "token",
				Usage: "sign a development token",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Required: true, Usage: "user id (token subject)"},
					&cli.StringFlag{Name: "username", Usage: "display name; defaults to the id"},
					&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour, Usage: "token lifetime"},
				},
				Action: issueToken,
			},
		},
	}
}

// loadConfig reads the environment and applies flag overrides
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("env-file"))
	if err != nil {
		return nil, err
	}

	if cmd.IsSet("addr") {
		cfg.Addr = cmd.String("addr")
	}
	if cmd.IsSet("db") {
		cfg.DatabasePath = cmd.String("db")
	}
	if cmd.IsSet("log-format") {
		cfg.LogFormat = cmd.String("log-format")
	}
	if cmd.Bool("debug") {
		cfg.Debug = true
	}
	if cmd.Bool("ngrok") {
		cfg.Ngrok.Enabled = true
	}
	if cmd.IsSet("ngrok-auth") {
		cfg.Ngrok.AuthToken = cmd.String("ngrok-auth")
	}
	if cmd.IsSet("ngrok-domain") {
		cfg.Ngrok.Domain = cmd.String("ngrok-domain")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.Debug {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// app is the wired server: relay, router, engine and their HTTP surface
type app struct {
	logger  *slog.Logger
	db      *store.SQLite
	router  *chat.Router
	engine  *rps.Engine
	ws      *websocket.Server
	handler http.Handler
}

// newApp wires every component. baseURL is where the MCP endpoint reaches
// the REST API.
func newApp(cfg *config.Config, logger *slog.Logger, baseURL string) (*app, error) {
	db, err := store.Open(cfg.DatabasePath, cfg.WriteQueue, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	tokens, err := auth.NewManager(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create token manager: %w", err)
	}

	router := chat.NewRouter(db, logger)
	engine := rps.NewEngine(rps.Config{
		Names:          cfg.Names(),
		DefaultGGScore: cfg.DefaultGGScore,
	}, db, logger)

	ws := websocket.NewServer(router, engine, websocket.Options{
		HeartbeatInterval: cfg.HeartbeatInterval,
		ClientTimeout:     cfg.ClientTimeout,
		MailboxSize:       cfg.MailboxSize,
		AllowedOrigins:    cfg.AllowedOrigins,
		Logger:            logger,
	})

	handler := api.NewServer(api.Deps{
		Chat:       router,
		Games:      engine,
		HallOfFame: db,
		Auth:       tokens,
		WebSocket:  ws,
		MCP:        mcp.NewClient(baseURL),
		Logger:     logger,
	})

	return &app{
		logger:  logger,
		db:      db,
		router:  router,
		engine:  engine,
		ws:      ws,
		handler: handler,
	}, nil
}

// start runs the router and engine actors in g
func (a *app) start(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error { return a.router.Run(ctx) })
	g.Go(func() error { return a.engine.Run(ctx) })
}

// close disconnects every client and drains pending writes
func (a *app) close() {
	a.ws.Close()
	if err := a.db.Close(); err != nil {
		a.logger.Error("database close failed", "error", err)
	}
}

// serve runs the HTTP server until SIGINT or SIGTERM
func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	logger.Info("starting", "app", AppName, "version", Version, "database", cfg.DatabasePath)

	a, err := newApp(cfg, logger, localBaseURL(cfg.Addr))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	a.start(gctx, g)

	g.Go(func() error {
		logger.Info("HTTP server listening",
			"addr", cfg.Addr,
			"api", localBaseURL(cfg.Addr)+"/api",
			"websocket", "/ws?token=<jwt>",
			"mcp", localBaseURL(cfg.Addr)+"/mcp")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cfg.Ngrok.Enabled {
		g.Go(func() error {
			serveNgrok(gctx, cfg.Ngrok, a.handler, logger)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		// Supervisors are hijacked connections; Shutdown does not wait for them.
		a.ws.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		return nil
	})

	err = g.Wait()
	a.close()
	logger.Info("server stopped")
	return err
}

// serveNgrok exposes handler through an ngrok tunnel until ctx is done.
// Tunnel failures are logged; the local server keeps running.
func serveNgrok(ctx context.Context, cfg config.Ngrok, handler http.Handler, logger *slog.Logger) {
	logger = logger.With("component", "ngrok")

	var tunnel ngrokConfig.Tunnel
	if cfg.Domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(cfg.Domain))
		logger.Info("using custom ngrok domain", "domain", cfg.Domain)
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	logger.Info("starting ngrok tunnel")
	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(cfg.AuthToken))
	if err != nil {
		logger.Error("failed to start ngrok tunnel", "error", err)
		return
	}

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			logger.Error("failed to close ngrok tunnel", "error", err)
		}
	}()

	url := tun.URL()
	logger.Info("ngrok tunnel established",
		"url", url,
		"api", url+"/api",
		"websocket", url+"/ws?token=<jwt>",
		"mcp", url+"/mcp")

	if err := http.Serve(tun, handler); err != nil && ctx.Err() == nil {
		logger.Error("ngrok server error", "error", err)
	}
	logger.Info("ngrok tunnel closed")
}

// runStdioMCP runs an MCP stdio server. It uses the server at --api-url if
// one answers; otherwise it starts an internal one on a loopback port.
func runStdioMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// stdout carries the protocol
	logger := newLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	baseURL := cmd.String("api-url")
	logger.Info("checking for API server", "url", baseURL)

	if !apiAvailable(ctx, baseURL) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}
		baseURL = "http://" + listener.Addr().String()
		logger.Info("no API server found, starting internal one", "url", baseURL)

		a, err := newApp(cfg, logger, baseURL)
		if err != nil {
			listener.Close()
			return err
		}

		ctx, cancel := context.WithCancel(ctx)
		g, gctx := errgroup.WithContext(ctx)
		a.start(gctx, g)

		internal := &http.Server{Handler: a.handler, ReadHeaderTimeout: 15 * time.Second}
		g.Go(func() error {
			if err := internal.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("internal http server: %w", err)
			}
			return nil
		})

		defer func() {
			cancel()
			internal.Close()
			if err := g.Wait(); err != nil {
				logger.Error("internal server stopped", "error", err)
			}
			a.close()
		}()
	}

	logger.Info("MCP stdio server ready", "api", baseURL)
	if err := server.ServeStdio(mcp.NewClient(baseURL).GetMCPServer()); err != nil {
		return fmt.Errorf("mcp stdio server: %w", err)
	}
	return nil
}

// apiAvailable reports whether a server answers the health endpoint
func apiAvailable(ctx context.Context, baseURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// issueToken prints a signed token for --id
func issueToken(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("env-file"))
	if err != nil {
		return err
	}

	tokens, err := auth.NewManager(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	if err != nil {
		return fmt.Errorf("set RPSCHAT_JWT_SECRET: %w", err)
	}

	id := cmd.String("id")
	username := cmd.String("username")
	if username == "" {
		username = id
	}

	token, err := tokens.Issue(id, username, cmd.Duration("ttl"))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.Root().Writer, token)
	return err
}

// localBaseURL turns a listen address into a URL reachable from this host
func localBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v3"

	"github.com/wricardo/rpschat/auth"
	"github.com/wricardo/rpschat/config"
)

func TestConstants(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
	if AppName != "rpschat" {
		t.Errorf("Expected app name rpschat, got %s", AppName)
	}
}

func TestLocalBaseURL(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{":8080", "http://localhost:8080"},
		{"0.0.0.0:9090", "http://localhost:9090"},
		{"127.0.0.1:8080", "http://127.0.0.1:8080"},
		{"[::]:8080", "http://localhost:8080"},
		{"example.com", "http://example.com"},
	}

	for _, tt := range tests {
		if got := localBaseURL(tt.addr); got != tt.want {
			t.Errorf("localBaseURL(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("RPSCHAT_JWT_SECRET", "test-secret")
	t.Setenv("RPSCHAT_JWT_ISSUER", "rpschat")

	cmd := newCommand()
	var out bytes.Buffer
	cmd.Writer = &out

	err := cmd.Run(context.Background(), []string{AppName, "--env-file", "", "token", "--id", "u1", "--username", "alice"})
	if err != nil {
		t.Fatalf("token command failed: %v", err)
	}

	tokens, err := auth.NewManager(auth.Config{Secret: "test-secret", Issuer: "rpschat"})
	if err != nil {
		t.Fatal(err)
	}
	id, err := tokens.Verify(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if id.ID != "u1" || id.Username != "alice" {
		t.Errorf("Unexpected identity: %+v", id)
	}
}

func TestTokenCommand_MissingSecret(t *testing.T) {
	t.Setenv("RPSCHAT_JWT_SECRET", "")

	cmd := newCommand()
	cmd.Writer = &bytes.Buffer{}
	err := cmd.Run(context.Background(), []string{AppName, "--env-file", "", "token", "--id", "u1"})
	if !errors.Is(err, auth.ErrMissingKey) {
		t.Errorf("Expected ErrMissingKey, got %v", err)
	}
}

func TestFlagOverrides(t *testing.T) {
	t.Setenv("RPSCHAT_JWT_SECRET", "test-secret")
	t.Setenv("RPSCHAT_ADDR", ":1111")
	db := filepath.Join(t.TempDir(), "x.sqlite")

	var got *config.Config
	cmd := newCommand()
	cmd.Action = func(ctx context.Context, c *cli.Command) error {
		cfg, err := loadConfig(c)
		got = cfg
		return err
	}

	err := cmd.Run(context.Background(), []string{AppName, "--env-file", "", "--addr", ":2222", "--db", db, "--log-format", "json", "--debug"})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got.Addr != ":2222" || got.DatabasePath != db || got.LogFormat != "json" || !got.Debug {
		t.Errorf("Flags not applied: %+v", got)
	}
}

func TestFlagOverrides_Invalid(t *testing.T) {
	t.Setenv("RPSCHAT_JWT_SECRET", "test-secret")

	cmd := newCommand()
	cmd.Action = func(ctx context.Context, c *cli.Command) error {
		_, err := loadConfig(c)
		return err
	}

	err := cmd.Run(context.Background(), []string{AppName, "--env-file", "", "--log-format", "xml"})
	if !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
}

func TestNewApp(t *testing.T) {
	t.Setenv("RPSCHAT_JWT_SECRET", "test-secret")
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.DatabasePath = filepath.Join(t.TempDir(), "app.sqlite")

	a, err := newApp(cfg, newLogger(cfg, &bytes.Buffer{}), "http://localhost:0")
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	defer a.close()

	if a.handler == nil || a.router == nil || a.engine == nil {
		t.Error("Expected all components wired")
	}
}

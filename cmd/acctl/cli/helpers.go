package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/acctl/acctl/internal/api"
	"github.com/acctl/acctl/internal/directory"
	"github.com/acctl/acctl/internal/passcheck"
	"github.com/acctl/acctl/internal/session"
	"github.com/acctl/acctl/internal/state"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from --data-dir flag,
// ACCTL_DATA_DIR env var, or ~/.acctl as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("ACCTL_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return home + "/.acctl"
}

// resolveServerURL returns the service base URL from the --server flag or
// the configuration.
func resolveServerURL() (string, error) {
	if serverURL != "" {
		return serverURL, nil
	}
	if url := viper.GetString("server.url"); url != "" {
		return url, nil
	}
	return "", errors.New("no server configured: pass --server or set server.url in acctl.yaml")
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(viper.GetString("log.level")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// appEnv bundles everything a command needs: the API client, the state
// store, the session manager, and the directory syncer on top of them.
type appEnv struct {
	logger  *slog.Logger
	store   *state.Store
	client  *api.Client
	manager *session.Manager
	syncer  *directory.Syncer
}

// newAppEnv wires up the client stack for the configured server.
func newAppEnv() (*appEnv, error) {
	url, err := resolveServerURL()
	if err != nil {
		return nil, err
	}

	logger := newLogger()
	store, err := state.NewStore(resolveDataDir())
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	client := api.NewClient(url, viper.GetDuration("server.timeout"), logger)
	manager := session.NewManager(client, store, logger)
	syncer := directory.NewSyncer(client, manager, logger)

	return &appEnv{
		logger:  logger,
		store:   store,
		client:  client,
		manager: manager,
		syncer:  syncer,
	}, nil
}

func (e *appEnv) Close() {
	e.store.Close()
}

// restoreSession restores the persisted session and fails with a hint when
// there is none.
func (e *appEnv) restoreSession(ctx context.Context) (session.Session, error) {
	sess, ok, err := e.manager.Restore(ctx)
	if err != nil {
		return session.Session{}, err
	}
	if !ok {
		return session.Session{}, fmt.Errorf("%w: run 'acctl login' first", session.ErrNotLoggedIn)
	}
	return sess, nil
}

// promptPassword reads a password without echo when stdin is a terminal,
// falling back to a plain line read for piped input.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(pwBytes), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// promptNewPassword reads a new password plus its confirmation, printing the
// strength estimate in between. The estimate never blocks submission; the
// confirmation check is left to the caller (it decides whether a request may
// be issued at all).
func promptNewPassword(username string) (password, confirm string, err error) {
	password, err = promptPassword("New password: ")
	if err != nil {
		return "", "", err
	}
	if password != "" {
		res := passcheck.Score(password, username)
		fmt.Fprintf(os.Stderr, "This is a %s password (estimated crack-time: %s)\n", res.Label, res.CrackTimeDisplay)
	}
	confirm, err = promptPassword("Retype password: ")
	if err != nil {
		return "", "", err
	}
	return password, confirm, nil
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}

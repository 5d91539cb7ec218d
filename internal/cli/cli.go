// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command table, environment and dispatch for kbchat.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"strings"

	"github.com/jeranaias/kbchat/internal/api"
	"github.com/jeranaias/kbchat/internal/chat"
	"github.com/jeranaias/kbchat/internal/config"
	"github.com/jeranaias/kbchat/internal/credstore"
	"github.com/jeranaias/kbchat/internal/logging"
	"github.com/jeranaias/kbchat/internal/storage"
	"github.com/jeranaias/kbchat/internal/ui/app"
)

// Version information (overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// ENVIRONMENT
// =============================================================================

// Streams are the standard streams a command talks to.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// StdStreams returns the process streams.
func StdStreams() Streams {
	return Streams{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}

// Env is everything a command handler needs.
type Env struct {
	Config  *config.Config
	Session *credstore.Session
	Client  *api.Client

	In  io.Reader
	Out io.Writer
	Err io.Writer

	// JSON selects machine-readable output (--json).
	JSON bool
	// Quiet suppresses progress chatter on stderr (--quiet).
	Quiet bool

	input *lineReader
	cache *storage.HistoryCache
}

// NewEnv opens the credential store and builds the API client for cfg.
// Unreadable saved credentials leave the session signed out with a warning.
func NewEnv(cfg *config.Config, streams Streams) *Env {
	env := &Env{
		Config: cfg,
		In:     streams.In,
		Out:    streams.Out,
		Err:    streams.Err,
		input:  newLineReader(streams.In),
	}

	passphrase := ""
	if cfg.Auth.EncryptCredentials {
		passphrase = cfg.Auth.CredentialKey
	}
	sess, err := credstore.OpenSession(credstore.NewStore(cfg.Auth.CredentialsPath, passphrase))
	if err != nil {
		env.warn("saved login could not be read: %v", err)
	}
	env.Session = sess
	env.Client = api.NewClient(sess, &api.ClientConfig{
		BaseURL:       cfg.API.BaseURL,
		Timeout:       cfg.API.Timeout(),
		StreamTimeout: cfg.API.StreamTimeout(),
		RateLimit:     cfg.API.RateLimitRPS,
		RateBurst:     cfg.API.RateBurst,
		UserAgent:     cfg.API.UserAgent,
	})
	return env
}

// Cache opens the local history cache on first use. It returns nil when
// the cache is disabled or cannot be opened.
func (e *Env) Cache() *storage.HistoryCache {
	if e.cache != nil || !e.Config.Chat.HistoryCache {
		return e.cache
	}
	c, err := storage.OpenHistoryCache(e.Config.Chat.CachePath)
	if err != nil {
		e.warn("history cache unavailable: %v", err)
		return nil
	}
	e.cache = c
	return c
}

// chatCache adapts Cache to chat.Cache without a typed nil.
func (e *Env) chatCache() chat.Cache {
	if c := e.Cache(); c != nil {
		return c
	}
	return nil
}

// Close releases the cache.
func (e *Env) Close() {
	if e.cache != nil {
		if err := e.cache.Close(); err != nil {
			slog.Warn("HISTORY_CACHE", "error", err)
		}
		e.cache = nil
	}
}

// info prints progress to stderr unless --quiet.
func (e *Env) info(format string, args ...interface{}) {
	if e.Quiet {
		return
	}
	fmt.Fprintln(e.Err, DimStyle.Render(fmt.Sprintf(format, args...)))
}

func (e *Env) warn(format string, args ...interface{}) {
	fmt.Fprintf(e.Err, "%s %s\n", WarningStyle.Render("[!]"), fmt.Sprintf(format, args...))
}

// success prints a confirmation line to stdout.
func (e *Env) success(format string, args ...interface{}) {
	fmt.Fprintf(e.Out, "%s %s\n", SuccessStyle.Render("[OK]"), fmt.Sprintf(format, args...))
}

// interactive reports whether prompts can be shown.
func (e *Env) interactive() bool {
	return isTerminal(e.In)
}

// requireLogin fails fast with the client's unauthorized error.
func (e *Env) requireLogin() error {
	if !e.Session.Authenticated() {
		return api.ErrUnauthorized
	}
	return nil
}

// =============================================================================
// COMMAND TABLE
// =============================================================================

// HandlerFunc runs one command. args has the command name shifted off.
type HandlerFunc func(ctx context.Context, env *Env, args *ArgParser) error

type command struct {
	Name    string
	Aliases []string
	Summary string
	Usage   string
	Run     HandlerFunc
}

var commands []*command

func init() {
	commands = []*command{
		{Name: "login", Summary: "Sign in and save the token", Usage: loginUsage, Run: runLogin},
		{Name: "register", Summary: "Create an account", Usage: registerUsage, Run: runRegister},
		{Name: "logout", Summary: "Sign out and forget the token", Usage: "kbchat logout", Run: runLogout},
		{Name: "whoami", Summary: "Show the signed-in user", Usage: "kbchat whoami [--json]", Run: runWhoami},
		{Name: "departments", Aliases: []string{"depts"}, Summary: "List departments", Usage: "kbchat departments [--json]", Run: runDepartments},
		{Name: "workspace", Aliases: []string{"ws", "workspaces"}, Summary: "Manage workspaces", Usage: workspaceUsage, Run: runWorkspace},
		{Name: "session", Aliases: []string{"sessions"}, Summary: "Manage chat sessions", Usage: sessionUsage, Run: runSession},
		{Name: "message", Aliases: []string{"msg"}, Summary: "Manage messages", Usage: messageUsage, Run: runMessage},
		{Name: "chat", Summary: "Interactive chat in the terminal", Usage: chatUsage, Run: runChat},
		{Name: "ask", Summary: "Ask one question and print the answer", Usage: askUsage, Run: runAsk},
		{Name: "file", Aliases: []string{"files", "kb"}, Summary: "Manage knowledge-base documents", Usage: fileUsage, Run: runFile},
		{Name: "export", Summary: "Export a session transcript", Usage: exportUsage, Run: runExport},
		{Name: "config", Summary: "Show or change configuration", Usage: configUsage, Run: runConfig},
		{Name: "doctor", Aliases: []string{"diag"}, Summary: "Check configuration and connectivity", Usage: doctorUsage, Run: runDoctor},
		{Name: "devserver", Summary: "Run a local in-memory backend", Usage: devserverUsage, Run: runDevServer},
		{Name: "version", Summary: "Show version information", Usage: "kbchat version [--json]", Run: runVersion},
		{Name: "help", Summary: "Show help for a command", Usage: "kbchat help [command]", Run: runHelp},
	}
}

func lookupCommand(name string) *command {
	name = strings.ToLower(name)
	for _, c := range commands {
		if c.Name == name {
			return c
		}
		for _, a := range c.Aliases {
			if a == name {
				return c
			}
		}
	}
	return nil
}

// =============================================================================
// RUN
// =============================================================================

// Run executes argv (without the program name) and returns the exit code.
func Run(ctx context.Context, argv []string, streams Streams) int {
	args := NewArgParser(argv)
	if args.BoolFlag("no-color") {
		disableColors()
	}
	jsonMode := args.BoolFlag("json")

	name := args.Subcommand()
	switch {
	case name == "" && args.BoolFlag("version", "v"):
		name = "version"
	case args.BoolFlag("help", "h"):
		// "kbchat workspace --help" shows the workspace usage.
		if name != "" && name != "help" {
			argv = []string{"help", name}
		} else {
			argv = []string{"help"}
		}
		args = NewArgParser(argv)
		name = "help"
	}

	var cmd *command
	if name != "" {
		cmd = lookupCommand(name)
		if cmd == nil {
			reason := "unknown"
			if s := SuggestCommand(name); s != "" {
				reason = fmt.Sprintf("unknown, did you mean '%s'?", s)
			}
			err := &ValidationError{Field: "command", Value: name, Reason: reason, Example: "kbchat help"}
			reportError(streams, err, jsonMode)
			return GetExitCode(err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		if cfg == nil {
			reportError(streams, fmt.Errorf("load configuration: %w", err), jsonMode)
			return ExitConfigError
		}
		fmt.Fprintf(streams.Err, "%s %v (using defaults)\n", WarningStyle.Render("[!]"), err)
	}
	if u := args.Flag("api-url"); u != "" {
		cfg.API.BaseURL = strings.TrimRight(u, "/")
	}

	closeLog, err := setupLogging(cfg)
	if err != nil {
		fmt.Fprintf(streams.Err, "%s logging disabled: %v\n", WarningStyle.Render("[!]"), err)
	}
	defer closeLog()

	env := NewEnv(cfg, streams)
	defer env.Close()
	env.JSON = jsonMode
	env.Quiet = args.BoolFlag("quiet", "q")

	if cmd == nil {
		err = runTUI(ctx, env)
	} else {
		slog.Debug("COMMAND", "name", cmd.Name)
		err = cmd.Run(ctx, env, args.Shift())
	}
	if err != nil {
		reportError(streams, err, jsonMode)
	}
	return GetExitCode(err)
}

func reportError(streams Streams, err error, jsonMode bool) {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrNotConfirmed) {
		fmt.Fprintln(streams.Err, WarningStyle.Render("Cancelled."))
		return
	}
	if jsonMode {
		DisplayError(streams.Out, err, true)
		return
	}
	DisplayError(streams.Err, err, false)
}

// setupLogging points slog at the log file and returns a func that
// restores the previous logger.
func setupLogging(cfg *config.Config) (func(), error) {
	prev := slog.Default()
	closer, err := logging.Setup(cfg.Log.Level, cfg.Log.Path)
	if err != nil {
		return func() {}, err
	}
	return func() {
		slog.SetDefault(prev)
		_ = closer.Close()
	}, nil
}

// runTUI starts the full-screen interface.
func runTUI(ctx context.Context, env *Env) error {
	if !env.interactive() || !isTerminal(env.Out) {
		return &TTYRequiredError{Operation: "start the terminal UI (try 'kbchat help')"}
	}
	return app.Run(ctx, app.Options{
		Config:  env.Config,
		Client:  env.Client,
		Session: env.Session,
		Cache:   env.chatCache(),
		Version: Version,
	})
}

// =============================================================================
// HELP AND VERSION
// =============================================================================

const usageHeader = `kbchat - terminal client for the knowledge-base chat service

Usage:
  kbchat                      Start the terminal UI
  kbchat <command> [args]     Run a command

Commands:
`

const usageFooter = `
Global flags:
  --json             Print machine-readable JSON
  --quiet, -q        Suppress progress messages
  --api-url URL      Override api.base_url for this run
  --no-color         Disable colors

Run 'kbchat help <command>' for details on a command.
`

// usageText returns the top-level help.
func usageText() string {
	var b strings.Builder
	b.WriteString(usageHeader)
	for _, c := range commands {
		fmt.Fprintf(&b, "  %-14s %s\n", c.Name, c.Summary)
	}
	b.WriteString(usageFooter)
	return b.String()
}

func runHelp(_ context.Context, env *Env, args *ArgParser) error {
	name := args.Subcommand()
	if name == "" {
		fmt.Fprint(env.Out, usageText())
		return nil
	}
	cmd := lookupCommand(name)
	if cmd == nil {
		return &ValidationError{Field: "command", Value: name, Reason: "unknown", Example: "kbchat help"}
	}
	fmt.Fprintln(env.Out, TitleStyle.Render("kbchat "+cmd.Name)+" - "+cmd.Summary)
	if len(cmd.Aliases) > 0 {
		aliases := append([]string(nil), cmd.Aliases...)
		sort.Strings(aliases)
		fmt.Fprintln(env.Out, DimStyle.Render("aliases: "+strings.Join(aliases, ", ")))
	}
	fmt.Fprintln(env.Out)
	fmt.Fprintln(env.Out, cmd.Usage)
	return nil
}

// VersionInfo is the version command's JSON payload.
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func runVersion(_ context.Context, env *Env, _ *ArgParser) error {
	info := VersionInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	return env.emit("version", info, func() {
		fmt.Fprintf(env.Out, "kbchat %s\n", info.Version)
		fmt.Fprintln(env.Out, RenderKV("commit", info.GitCommit))
		fmt.Fprintln(env.Out, RenderKV("built", info.BuildDate))
		fmt.Fprintln(env.Out, RenderKV("go", info.GoVersion))
		fmt.Fprintln(env.Out, RenderKV("platform", info.Platform))
	})
}

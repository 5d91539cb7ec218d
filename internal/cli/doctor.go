// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// doctor.go - Doctor command implementation for kbchat.
//
// Command: doctor
// Short:   Run setup and connectivity checks
// Aliases: diag
//
// Checks performed:
//  1. Config Valid: validates the loaded configuration
//  2. Server Reachable: calls a public endpoint on api.base_url
//  3. Signed In: verifies the saved token with the server
//  4. Credentials File: checks the credentials file is private
//  5. History Cache: opens the local SQLite cache
//  6. Log File: checks the log directory is writable
//
// Exits 0 when no check failed (warnings allowed) and 1 otherwise.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/jeranaias/kbchat/internal/api"
	"github.com/jeranaias/kbchat/internal/config"
)

const doctorUsage = `Usage:
  kbchat doctor [--json]

Checks configuration, server connectivity, the saved login and local
files. Exits 1 when a check fails.`

// =============================================================================
// HEALTH CHECK TYPES
// =============================================================================

// CheckStatus represents the status of a health check.
type CheckStatus int

const (
	// CheckPass indicates the check passed successfully.
	CheckPass CheckStatus = iota
	// CheckWarn indicates the check passed with warnings.
	CheckWarn
	// CheckFail indicates the check failed.
	CheckFail
)

func (s CheckStatus) String() string {
	switch s {
	case CheckPass:
		return "pass"
	case CheckWarn:
		return "warn"
	case CheckFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Symbol returns the colored status marker.
func (s CheckStatus) Symbol() string {
	switch s {
	case CheckPass:
		return SuccessStyle.Render("[OK]")
	case CheckWarn:
		return WarningStyle.Render("[!!]")
	case CheckFail:
		return ErrorStyle.Render("[FAIL]")
	default:
		return "?"
	}
}

// HealthCheck is the result of one diagnostic.
type HealthCheck struct {
	Name    string      `json:"name"`
	Status  CheckStatus `json:"-"`
	Message string      `json:"message"`
	Fix     string      `json:"fix,omitempty"` // Suggested command or instruction
}

// Render formats the check for terminal output.
func (c *HealthCheck) Render() string {
	result := fmt.Sprintf("%s %s", c.Status.Symbol(), c.Message)
	if c.Status != CheckPass && c.Fix != "" {
		result += "\n" + DimStyle.Render("       -> "+c.Fix)
	}
	return result
}

// doctorCheck is the JSON shape of a check.
type doctorCheck struct {
	*HealthCheck
	State string `json:"status"`
}

// DoctorReport is the --json payload of doctor.
type DoctorReport struct {
	Checks  []doctorCheck `json:"checks"`
	Passed  int           `json:"passed"`
	Warned  int           `json:"warned"`
	Failed  int           `json:"failed"`
	Healthy bool          `json:"healthy"`
}

// =============================================================================
// DOCTOR COMMAND
// =============================================================================

func runDoctor(ctx context.Context, env *Env, _ *ArgParser) error {
	checks := runAllChecks(ctx, env)

	report := DoctorReport{}
	for _, c := range checks {
		switch c.Status {
		case CheckPass:
			report.Passed++
		case CheckWarn:
			report.Warned++
		case CheckFail:
			report.Failed++
		}
		report.Checks = append(report.Checks, doctorCheck{HealthCheck: c, State: c.Status.String()})
	}
	report.Healthy = report.Failed == 0

	if err := env.emit("doctor", report, func() {
		fmt.Fprintln(env.Out, TitleStyle.Render("kbchat doctor"))
		fmt.Fprintln(env.Out, RenderSeparator(41))
		for _, c := range checks {
			fmt.Fprintln(env.Out, c.Render())
		}
		fmt.Fprintln(env.Out, RenderSeparator(41))

		parts := []string{fmt.Sprintf("%d passed", report.Passed)}
		if report.Warned > 0 {
			parts = append(parts, WarningStyle.Render(fmt.Sprintf("%d warning", report.Warned)))
		}
		if report.Failed > 0 {
			parts = append(parts, ErrorStyle.Render(fmt.Sprintf("%d failed", report.Failed)))
		}
		fmt.Fprintln(env.Out, DimStyle.Render(strings.Join(parts, ", ")))
	}); err != nil {
		return err
	}

	if report.Failed > 0 {
		return NewCommandError("doctor", "check", fmt.Sprintf("%d health check(s) failed", report.Failed), nil)
	}
	return nil
}

// =============================================================================
// HEALTH CHECKS
// =============================================================================

func runAllChecks(ctx context.Context, env *Env) []*HealthCheck {
	checks := []*HealthCheck{checkConfigValid(env)}

	reach := checkServerReachable(ctx, env)
	checks = append(checks, reach)
	if reach.Status == CheckFail {
		checks = append(checks, &HealthCheck{
			Name:    "Signed In",
			Status:  CheckWarn,
			Message: "Login not verified (server unreachable)",
		})
	} else {
		checks = append(checks, checkSignedIn(ctx, env))
	}

	return append(checks,
		checkCredentialsFile(env),
		checkHistoryCache(env),
		checkLogFile(env),
	)
}

func checkConfigValid(env *Env) *HealthCheck {
	check := &HealthCheck{Name: "Config Valid"}
	path, _ := configFilePath()
	if err := env.Config.Validate(); err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("Config invalid: %v", err)
		check.Fix = "Run: kbchat config show"
		return check
	}
	check.Status = CheckPass
	if path == "" {
		check.Message = "Config valid (defaults, no config file)"
	} else {
		check.Message = fmt.Sprintf("Config valid (%s)", path)
	}
	return check
}

func checkServerReachable(ctx context.Context, env *Env) *HealthCheck {
	check := &HealthCheck{Name: "Server Reachable"}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	_, err := env.Client.Departments(ctx)
	elapsed := time.Since(start).Round(time.Millisecond)

	var cerr *api.ClientError
	switch {
	case err == nil:
		check.Status = CheckPass
		check.Message = fmt.Sprintf("Server reachable at %s (%s)", env.Client.BaseURL(), elapsed)
	case errors.As(err, &cerr) && cerr.Type == api.ErrTypeTransport:
		check.Status = CheckFail
		check.Message = fmt.Sprintf("Cannot reach %s", env.Client.BaseURL())
		check.Fix = "Run: kbchat config set api.base_url <url>"
	default:
		// The server answered, just not the way we hoped.
		check.Status = CheckWarn
		check.Message = fmt.Sprintf("Server at %s answered with an error: %v", env.Client.BaseURL(), err)
	}
	return check
}

func checkSignedIn(ctx context.Context, env *Env) *HealthCheck {
	check := &HealthCheck{Name: "Signed In", Fix: "Run: kbchat login"}
	if !env.Session.Authenticated() {
		check.Status = CheckWarn
		check.Message = "Not signed in"
		return check
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	u, err := env.Client.Me(ctx)
	switch {
	case err == nil:
		check.Status = CheckPass
		check.Message = fmt.Sprintf("Signed in as %s", u.Email)
	case errors.Is(err, api.ErrUnauthorized):
		check.Status = CheckFail
		check.Message = "Saved login was rejected by the server"
	default:
		check.Status = CheckWarn
		check.Message = fmt.Sprintf("Could not verify login: %v", err)
	}
	return check
}

func checkCredentialsFile(env *Env) *HealthCheck {
	check := &HealthCheck{Name: "Credentials File"}
	path := env.Config.Auth.CredentialsPath
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		check.Status = CheckPass
		check.Message = "No saved credentials"
		return check
	case err != nil:
		check.Status = CheckFail
		check.Message = fmt.Sprintf("Cannot read %s: %v", path, err)
		return check
	}

	encrypted := "plain"
	if env.Config.Auth.EncryptCredentials {
		encrypted = "encrypted"
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o077 != 0 {
		check.Status = CheckWarn
		check.Message = fmt.Sprintf("Credentials file %s is readable by others (%s)", path, info.Mode().Perm())
		check.Fix = "Run: chmod 600 " + path
		return check
	}
	check.Status = CheckPass
	check.Message = fmt.Sprintf("Credentials stored %s in %s", encrypted, path)
	return check
}

func checkHistoryCache(env *Env) *HealthCheck {
	check := &HealthCheck{Name: "History Cache"}
	if !env.Config.Chat.HistoryCache {
		check.Status = CheckPass
		check.Message = "History cache disabled"
		return check
	}
	c := env.Cache()
	if c == nil {
		check.Status = CheckWarn
		check.Message = fmt.Sprintf("History cache cannot be opened at %s", env.Config.Chat.CachePath)
		check.Fix = "Run: kbchat config set chat.history_cache false"
		return check
	}
	metas, err := c.List()
	if err != nil {
		check.Status = CheckWarn
		check.Message = fmt.Sprintf("History cache unreadable: %v", err)
		return check
	}
	check.Status = CheckPass
	check.Message = fmt.Sprintf("History cache holds %d session(s)", len(metas))
	return check
}

func checkLogFile(env *Env) *HealthCheck {
	check := &HealthCheck{Name: "Log File"}
	dir := filepath.Dir(env.Config.Log.Path)
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		check.Status = CheckWarn
		check.Message = fmt.Sprintf("Log directory %s is not writable", dir)
		return check
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	check.Status = CheckPass
	check.Message = fmt.Sprintf("Logging %s to %s", env.Config.Log.Level, env.Config.Log.Path)
	return check
}

// configFilePath returns the config file in use, or "" for defaults.
func configFilePath() (string, error) {
	path, err := config.ConfigPathTOML()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		return "", nil
	}
	return path, nil
}

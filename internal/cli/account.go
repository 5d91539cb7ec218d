// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// account.go - login, register, logout, whoami and departments.

package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jeranaias/kbchat/internal/api"
	"github.com/jeranaias/kbchat/internal/model"
)

const loginUsage = `Usage:
  kbchat login [email] [--password PASS]

The password is read without echo when stdin is a terminal, from
KBCHAT_PASSWORD when set, or from the first line of stdin otherwise.
The token is saved to auth.credentials_path.`

const registerUsage = `Usage:
  kbchat register --email EMAIL --send-code
  kbchat register --email EMAIL --name NAME --department ID --code CODE [--password PASS]

Request a verification code first, then register with it.
'kbchat departments' lists department ids.`

// =============================================================================
// LOGIN / LOGOUT
// =============================================================================

func runLogin(ctx context.Context, env *Env, args *ArgParser) error {
	email := strings.TrimSpace(args.FirstFlag("email", "e"))
	if email == "" {
		email = strings.TrimSpace(args.Positional(0))
	}
	if email == "" {
		if !env.interactive() {
			return ErrMissingArgument("email", "kbchat login EMAIL")
		}
		fmt.Fprint(env.Err, "Email: ")
		line, err := env.input.ReadLine()
		if err != nil {
			return fmt.Errorf("read email: %w", err)
		}
		email = strings.TrimSpace(line)
	}

	password, err := readPassword(env, args, "Password: ")
	if err != nil {
		return err
	}

	res, err := env.Client.Login(ctx, email, password)
	if err != nil {
		return err
	}
	return env.emit("login", res.User, func() {
		env.success("Signed in as %s", describeUser(res.User))
	})
}

// readPassword returns --password, KBCHAT_PASSWORD or a prompted secret.
func readPassword(env *Env, args *ArgParser, prompt string) (string, error) {
	if p := args.FirstFlag("password", "p"); p != "" {
		return p, nil
	}
	if p := os.Getenv("KBCHAT_PASSWORD"); p != "" {
		return p, nil
	}
	return env.input.ReadSecret(env.Err, prompt)
}

func runLogout(ctx context.Context, env *Env, _ *ArgParser) error {
	if !env.Session.Authenticated() {
		return env.emit("logout", map[string]bool{"signed_out": false}, func() {
			fmt.Fprintln(env.Out, DimStyle.Render("Not signed in."))
		})
	}
	if err := env.Client.Logout(ctx); err != nil {
		// Local credentials are gone either way.
		env.warn("server did not confirm sign-out: %v", err)
	}
	return env.emit("logout", map[string]bool{"signed_out": true}, func() {
		env.success("Signed out")
	})
}

// =============================================================================
// REGISTER
// =============================================================================

func runRegister(ctx context.Context, env *Env, args *ArgParser) error {
	email := strings.TrimSpace(args.FirstFlag("email", "e"))
	if email == "" {
		return ErrMissingArgument("email", "kbchat register --email EMAIL --send-code")
	}

	if args.BoolFlag("send-code") {
		if err := env.Client.SendVerification(ctx, email); err != nil {
			return err
		}
		return env.emit("register", map[string]string{"verification_sent_to": email}, func() {
			env.success("Verification code sent to %s", email)
		})
	}

	dept, err := ParseIntWithValidation(args.Flag("department"), "department")
	if err != nil {
		return err
	}
	req := api.RegisterRequest{
		Email:            email,
		Name:             strings.TrimSpace(args.Flag("name")),
		DepartmentID:     dept,
		VerificationCode: strings.TrimSpace(args.Flag("code")),
	}

	if p := args.FirstFlag("password", "p"); p != "" {
		req.Password, req.ConfirmPassword = p, p
	} else {
		if req.Password, err = readPassword(env, args, "Password: "); err != nil {
			return err
		}
		if req.ConfirmPassword, err = env.input.ReadSecret(env.Err, "Confirm password: "); err != nil {
			return err
		}
	}

	if err := env.Client.Register(ctx, req); err != nil {
		return err
	}
	return env.emit("register", map[string]string{"email": email}, func() {
		env.success("Account created. Sign in with 'kbchat login %s'", email)
	})
}

// =============================================================================
// WHOAMI / DEPARTMENTS
// =============================================================================

func runWhoami(ctx context.Context, env *Env, _ *ArgParser) error {
	if err := env.requireLogin(); err != nil {
		return err
	}
	u, err := env.Client.Me(ctx)
	if err != nil {
		return err
	}
	if err := env.Session.SetUser(*u); err != nil {
		env.warn("could not save profile: %v", err)
	}
	return env.emit("whoami", u, func() {
		fmt.Fprintln(env.Out, TitleStyle.Render(u.Name))
		fmt.Fprintln(env.Out, RenderKV("Email", u.Email))
		fmt.Fprintln(env.Out, RenderKV("User ID", u.ID.String()))
		fmt.Fprintln(env.Out, RenderKV("Department", u.DepartmentID.String()))
		fmt.Fprintln(env.Out, RenderKV("Enterprise", strconv.FormatBool(u.IsEnterpriseUser)))
		fmt.Fprintln(env.Out, RenderKV("Server", env.Client.BaseURL()))
	})
}

func runDepartments(ctx context.Context, env *Env, _ *ArgParser) error {
	depts, err := env.Client.Departments(ctx)
	if err != nil {
		return err
	}
	return env.emit("departments", depts, func() {
		rows := make([][]string, 0, len(depts))
		for _, d := range depts {
			rows = append(rows, []string{strconv.Itoa(d.ID), d.Name})
		}
		fmt.Fprintln(env.Out, RenderTable([]string{"ID", "Department"}, rows))
	})
}

func describeUser(u model.User) string {
	if u.Name == "" {
		return u.Email
	}
	return fmt.Sprintf("%s <%s>", u.Name, u.Email)
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - View and edit the configuration file.

package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/jeranaias/kbchat/internal/config"
)

const configUsage = `Usage:
  kbchat config show [--json]
  kbchat config get <key>
  kbchat config set <key> <value>
  kbchat config path

Keys use dot notation, e.g. api.base_url or ui.theme.`

func runConfig(_ context.Context, env *Env, args *ArgParser) error {
	cfg := env.Config
	switch sub := args.Subcommand(); sub {
	case "show", "":
		return env.emit("config show", cfg, func() {
			fmt.Fprintln(env.Out, TitleStyle.Render("Configuration"))
			fmt.Fprintln(env.Out, RenderSeparator())
			for _, key := range config.GetAllKeys() {
				v, err := cfg.Get(key)
				if err != nil {
					continue
				}
				fmt.Fprintln(env.Out, RenderKV(key, fmt.Sprint(v)))
			}
		})

	case "get":
		key, err := args.RequirePositional(1, "key", "kbchat config get <key>")
		if err != nil {
			return err
		}
		v, err := cfg.Get(key)
		if err != nil {
			return NewValidationError("key", key, err.Error())
		}
		return env.emit("config get", map[string]interface{}{"key": key, "value": v}, func() {
			fmt.Fprintln(env.Out, v)
		})

	case "set":
		key, err := args.RequirePositional(1, "key", "kbchat config set <key> <value>")
		if err != nil {
			return err
		}
		if args.PositionalCount() < 3 {
			return ErrMissingArgument("value", "kbchat config set <key> <value>")
		}
		value := JoinPositionalArgs(args, 2)

		// Edit the file's own values so env and flag overrides are not persisted.
		path, err := config.ConfigPathTOML()
		if err != nil {
			return err
		}
		file := config.Default()
		if _, statErr := os.Stat(path); statErr == nil {
			if err := config.LoadTOML(file, path); err != nil {
				return err
			}
		}
		if err := file.Set(key, value); err != nil {
			return NewValidationError("key", key, err.Error())
		}
		check := file.Clone()
		check.SetDefaults()
		if err := check.Validate(); err != nil {
			return err
		}
		if err := config.EnsureConfigDir(); err != nil {
			return err
		}
		if err := config.SaveTOML(file, path); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		_ = cfg.Set(key, value)
		return env.emit("config set", map[string]string{"key": key, "value": value}, func() {
			env.success("%s = %s", key, value)
		})

	case "path":
		path, err := config.ConfigPathTOML()
		if err != nil {
			return err
		}
		return env.emit("config path", map[string]string{"path": path}, func() {
			fmt.Fprintln(env.Out, path)
		})

	default:
		return ErrUnknownSubcommand("config", sub, configUsage)
	}
}

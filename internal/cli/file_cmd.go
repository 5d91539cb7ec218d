// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// file_cmd.go - Knowledge-base document commands.

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/jeranaias/kbchat/internal/knowledge"
	"github.com/jeranaias/kbchat/internal/model"
	"github.com/jeranaias/kbchat/internal/util"
)

const fileUsage = `Usage:
  kbchat file history [--json]
  kbchat file check <file-name> [--scope enterprise|department]
  kbchat file upload <path...> [--scope enterprise|department] [--yes]
  kbchat file delete <file-id> [--yes]
  kbchat file tree <workspace-id> [--json]
  kbchat file embed <workspace-id> <file-id...>
  kbchat file unembed <workspace-id> <file-id>
  kbchat file mkdir <folder-name...>
  kbchat file watch <dir> [--scope enterprise|department] [--debounce MS]

upload asks before overwriting a file that exists but is not embedded
yet; --yes overwrites without asking. Files already embedded are
rejected. watch uploads files dropped into <dir> and never overwrites.`

func newKnowledgeService(env *Env) *knowledge.Service {
	dept := ""
	if u, ok := env.Session.User(); ok {
		dept = u.DepartmentID.String()
	}
	return knowledge.NewService(env.Client, dept)
}

func runFile(ctx context.Context, env *Env, args *ArgParser) error {
	if err := env.requireLogin(); err != nil {
		return err
	}
	svc := newKnowledgeService(env)

	switch sub := args.Subcommand(); sub {
	case "history", "ls", "list":
		return fileHistory(ctx, env, svc)
	case "check":
		return fileCheck(ctx, env, svc, args)
	case "upload", "add":
		return fileUpload(ctx, env, svc, args)
	case "delete", "rm":
		return fileDelete(ctx, env, svc, args)
	case "tree":
		wid, err := args.RequirePositional(1, "workspace-id", "kbchat file tree <workspace-id>")
		if err != nil {
			return err
		}
		tree, err := svc.Tree(ctx, wid)
		if err != nil {
			return err
		}
		return env.emit("file tree", tree, func() { printFolderTree(env, tree) })
	case "embed":
		wid, err := args.RequirePositional(1, "workspace-id", "kbchat file embed <workspace-id> <file-id...>")
		if err != nil {
			return err
		}
		ids := args.PositionalFrom(2)
		if len(ids) == 0 {
			return ErrMissingArgument("file-id", "kbchat file embed <workspace-id> <file-id...>")
		}
		tree, err := svc.Embed(ctx, ids, wid)
		if err != nil {
			return err
		}
		return env.emit("file embed", tree, func() {
			env.success("Added %d file(s) to workspace %s", len(ids), wid)
			printFolderTree(env, tree)
		})
	case "unembed":
		wid, err := args.RequirePositional(1, "workspace-id", "kbchat file unembed <workspace-id> <file-id>")
		if err != nil {
			return err
		}
		fid, err := args.RequirePositional(2, "file-id", "kbchat file unembed <workspace-id> <file-id>")
		if err != nil {
			return err
		}
		tree, err := svc.Unembed(ctx, wid, fid)
		if err != nil {
			return err
		}
		return env.emit("file unembed", tree, func() {
			env.success("Removed file %s from workspace %s", fid, wid)
			printFolderTree(env, tree)
		})
	case "mkdir":
		name := strings.TrimSpace(JoinPositionalArgs(args, 1))
		if name == "" {
			return ErrMissingArgument("folder-name", "kbchat file mkdir <folder-name...>")
		}
		if err := svc.CreateFolder(ctx, name); err != nil {
			return err
		}
		return env.emit("file mkdir", map[string]string{"folder": name}, func() {
			env.success("Created folder %q", name)
		})
	case "watch":
		return fileWatch(ctx, env, svc, args)
	default:
		return ErrUnknownSubcommand("file", sub, fileUsage)
	}
}

// =============================================================================
// HISTORY / CHECK / DELETE
// =============================================================================

func fileHistory(ctx context.Context, env *Env, svc *knowledge.Service) error {
	list, err := svc.History(ctx)
	if err != nil {
		return err
	}
	return env.emit("file history", list, func() {
		if len(list) == 0 {
			fmt.Fprintln(env.Out, DimStyle.Render("No uploads yet."))
			return
		}
		rows := make([][]string, 0, len(list))
		for _, f := range list {
			del := ""
			if f.CanDelete {
				del = "yes"
			}
			rows = append(rows, []string{f.ID.String(), f.FileName, util.HumanSize(f.FileSize), f.CreatedAt, del})
		}
		fmt.Fprintln(env.Out, RenderTable([]string{"ID", "File", "Size", "Uploaded", "Deletable"}, rows))
	})
}

// CheckResult is the --json payload of file check.
type CheckResult struct {
	FileName string `json:"file_name"`
	Scope    string `json:"scope"`
	Status   int    `json:"status"`
	Meaning  string `json:"meaning"`
}

func describeUploadStatus(status int) string {
	switch status {
	case model.UploadStatusEmbedded:
		return "already embedded; upload will be rejected"
	case model.UploadStatusExists:
		return "exists; upload will overwrite it"
	case model.UploadStatusNew:
		return "new; ready to upload"
	}
	return fmt.Sprintf("unknown status %d", status)
}

func fileCheck(ctx context.Context, env *Env, svc *knowledge.Service, args *ArgParser) error {
	name, err := args.RequirePositional(1, "file-name", "kbchat file check <file-name>")
	if err != nil {
		return err
	}
	scope, err := knowledge.ParseScope(args.Flag("scope"))
	if err != nil {
		return NewValidationError("scope", args.Flag("scope"), "want enterprise or department")
	}
	status, err := svc.Check(ctx, name, scope)
	if err != nil {
		return err
	}
	res := CheckResult{FileName: name, Scope: scope.String(), Status: status, Meaning: describeUploadStatus(status)}
	return env.emit("file check", res, func() {
		fmt.Fprintf(env.Out, "%s %s\n", name, DimStyle.Render("("+res.Scope+"): "+res.Meaning))
	})
}

func fileDelete(ctx context.Context, env *Env, svc *knowledge.Service, args *ArgParser) error {
	id, err := args.RequirePositional(1, "file-id", "kbchat file delete <file-id>")
	if err != nil {
		return err
	}
	if err := env.confirmOrCancel(args, "delete file "+id+" from the knowledge base"); err != nil {
		return err
	}
	if err := svc.Delete(ctx, id); err != nil {
		return err
	}
	return env.emit("file delete", map[string]string{"file_id": id}, func() {
		env.success("Deleted file %s", id)
	})
}

// =============================================================================
// UPLOAD
// =============================================================================

// UploadResult is one row of the --json payload of file upload.
type UploadResult struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	Status  int    `json:"status"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

func toUploadResult(r knowledge.Result) UploadResult {
	out := UploadResult{Path: r.Path, Name: r.Name, Status: r.Status, Outcome: r.Outcome.String()}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return out
}

func fileUpload(ctx context.Context, env *Env, svc *knowledge.Service, args *ArgParser) error {
	paths := args.PositionalFrom(1)
	if len(paths) == 0 {
		return ErrMissingArgument("path", "kbchat file upload <path...>")
	}
	scope, err := knowledge.ParseScope(args.Flag("scope"))
	if err != nil {
		return NewValidationError("scope", args.Flag("scope"), "want enterprise or department")
	}
	for i, p := range paths {
		paths[i] = expandHome(p)
	}

	confirm := knowledge.DeclineAll
	switch {
	case args.BoolFlag("yes", "y", "confirm"):
		confirm = func(string) bool { return true }
	case !env.JSON && env.interactive():
		confirm = func(name string) bool {
			ok, err := env.ask(fmt.Sprintf("%s already exists. Overwrite it? [y/N]: ", name))
			return err == nil && ok
		}
	}

	results := svc.Upload(ctx, paths, scope, confirm)
	out := make([]UploadResult, 0, len(results))
	failed := 0
	for _, r := range results {
		out = append(out, toUploadResult(r))
		if r.Outcome == knowledge.OutcomeFailed {
			failed++
		}
	}

	if err := env.emit("file upload", out, func() {
		for _, r := range results {
			printUploadResult(env, r)
		}
	}); err != nil {
		return err
	}
	if failed > 0 {
		return NewCommandError("file", "upload", fmt.Sprintf("%d of %d file(s) failed", failed, len(results)), nil)
	}
	return nil
}

func printUploadResult(env *Env, r knowledge.Result) {
	switch r.Outcome {
	case knowledge.OutcomeUploaded, knowledge.OutcomeOverwritten:
		fmt.Fprintf(env.Out, "%s %s %s\n", SuccessStyle.Render("[OK]"), r.Name, DimStyle.Render(r.Outcome.String()))
	case knowledge.OutcomeSkipped:
		fmt.Fprintf(env.Out, "%s %s %s\n", WarningStyle.Render("[-]"), r.Name, DimStyle.Render("exists, not overwritten"))
	case knowledge.OutcomeRejected:
		fmt.Fprintf(env.Out, "%s %s %s\n", WarningStyle.Render("[!]"), r.Name, DimStyle.Render("already embedded"))
	default:
		fmt.Fprintf(env.Out, "%s %s %v\n", ErrorStyle.Render("[X]"), r.Name, r.Err)
	}
}

// =============================================================================
// TREE
// =============================================================================

func printFolderTree(env *Env, tree []model.FolderTree) {
	if len(tree) == 0 {
		fmt.Fprintln(env.Out, DimStyle.Render("No folders."))
		return
	}
	for _, folder := range tree {
		fmt.Fprintf(env.Out, "%s %s\n", TitleStyle.Render(folder.FolderName+"/"), DimStyle.Render("#"+folder.FolderID.String()))
		for _, f := range folder.Files {
			mark := "[ ]"
			if f.IsSelected {
				mark = SuccessStyle.Render("[x]")
			}
			fmt.Fprintf(env.Out, "  %s %s %s\n", mark, f.FileName,
				DimStyle.Render(fmt.Sprintf("#%s %s", f.FileID, util.HumanSize(f.FileSize))))
		}
	}
}

// =============================================================================
// WATCH
// =============================================================================

func fileWatch(ctx context.Context, env *Env, svc *knowledge.Service, args *ArgParser) error {
	dir, err := args.RequirePositional(1, "dir", "kbchat file watch <dir>")
	if err != nil {
		return err
	}
	scope, err := knowledge.ParseScope(args.Flag("scope"))
	if err != nil {
		return NewValidationError("scope", args.Flag("scope"), "want enterprise or department")
	}
	debounce := time.Duration(args.FlagIntOrDefault("debounce", 0)) * time.Millisecond

	w, err := knowledge.NewWatcher(svc, expandHome(dir), knowledge.WatchOptions{
		Scope:    scope,
		Debounce: debounce,
		OnResult: func(r knowledge.Result) {
			if env.JSON {
				_ = NewJSONResponse("file watch", toUploadResult(r)).Write(env.Out)
				return
			}
			printUploadResult(env, r)
		},
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	if err := w.Start(ctx); err != nil {
		w.Close()
		return err
	}
	env.info("Watching %s (%s scope). Press Ctrl+C to stop.", dir, scope)

	select {
	case <-ctx.Done():
	case <-w.Done():
	}
	return w.Close()
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/marmos91/dapper/internal/cli/output"
	"github.com/marmos91/dapper/pkg/config"
	"github.com/marmos91/dapper/pkg/datastore"
	"github.com/marmos91/dapper/pkg/directory"
)

var (
	treeOutput string
	treeAll    bool
	treeWatch  bool
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print the LDAP tree built from the datastore",
	Long: `Load the configured datastore and print every projected entity with
its preferred DN. With --all, every DN an entity answers to is listed.

Examples:
  # Table of entities
  dapper tree

  # Every DN, as JSON
  dapper tree --all -o json

  # Reprint whenever the directory file changes (file datastore only)
  dapper tree --watch`,
	RunE: runTree,
}

func init() {
	treeCmd.Flags().StringVarP(&treeOutput, "output", "o", "table", "Output format (table, json, yaml)")
	treeCmd.Flags().BoolVar(&treeAll, "all", false, "List every DN instead of one row per entity")
	treeCmd.Flags().BoolVarP(&treeWatch, "watch", "w", false, "Reprint the tree when the datastore file changes")
}

func runTree(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(treeOutput)
	if err != nil {
		return err
	}

	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	render := func() error {
		tree, err := loadTree(ctx, cfg)
		if err != nil {
			return err
		}
		return output.Print(cmd.OutOrStdout(), format, treeTable(tree, treeAll))
	}

	if err := render(); err != nil {
		return err
	}
	if !treeWatch {
		return nil
	}

	if cfg.Datastore.Provider != datastore.ProviderFile {
		return fmt.Errorf("--watch requires the file datastore, not %q", cfg.Datastore.Provider)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s (Ctrl+C to stop)...\n", cfg.Datastore.File)
	return watchFile(ctx, cfg.Datastore.File, func() error {
		_, _ = fmt.Fprintln(cmd.OutOrStdout())
		if err := render(); err != nil {
			// A half-written file is common while editing; wait for the next save.
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "reload failed: %v\n", err)
		}
		return nil
	})
}

func loadTree(ctx context.Context, cfg *config.Config) (*directory.Tree, error) {
	p, err := datastore.New(ctx, cfg.Datastore)
	if err != nil {
		return nil, err
	}
	defer func() { _ = p.Close() }()

	return datastore.LoadTree(ctx, p, cfg.Directory)
}

// watchFile calls onChange each time path is written or replaced, until ctx
// is done. The parent directory is watched because editors often save by
// renaming a temporary file over the original.
func watchFile(ctx context.Context, path string, onChange func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if _, err := os.Stat(abs); errors.Is(err, os.ErrNotExist) {
				continue
			}
			if err := onChange(); err != nil {
				return err
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher error: %w", err)
		}
	}
}

func treeTable(tree *directory.Tree, all bool) *output.Table {
	if all {
		tbl := output.NewTable("DN", "Kind", "Bind")
		for _, e := range tree.Entries() {
			tbl.AddRow(e.DN, string(e.Projection.Kind), strconv.FormatBool(tree.IsBind(e.DN)))
		}
		return tbl
	}

	tbl := output.NewTable("Kind", "Preferred DN", "DNs", "Attributes")
	for _, p := range tree.Projections() {
		tbl.AddRow(string(p.Kind), p.DN, strconv.Itoa(len(p.DNs)), strings.Join(p.Attributes.Names(), ","))
	}
	return tbl
}

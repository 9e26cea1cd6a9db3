package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/syssam/objstore"
	"github.com/syssam/objstore/schema"
	"github.com/syssam/objstore/schema/index"
	"github.com/syssam/objstore/store"
)

func newSchemaCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage schemas",
		Long:  "Commands for declaring, listing, inspecting and deleting schemas.",
	}
	cmd.AddCommand(
		newSchemaApplyCmd(g),
		newSchemaSyncCmd(g),
		newSchemaListCmd(g),
		newSchemaGetCmd(g),
		newSchemaDeleteCmd(g),
	)
	return cmd
}

func newSchemaApplyCmd(g *globals) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "apply -f FILE",
		Short: "Create or update a schema from a YAML file",
		Long: `Create the schema declared by FILE, or update an existing schema of the
same name to the columns, indexes and description of the file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := g.open()
			if err != nil {
				return err
			}
			defer st.Close()
			sc, err := applyFile(cmd.Context(), st, file)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema %s applied (table %s, %d columns)\n", sc.Name, sc.TableName, len(sc.Columns))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "schema definition file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newSchemaSyncCmd(g *globals) *cobra.Command {
	var watchDir bool
	cmd := &cobra.Command{
		Use:   "sync DIR",
		Short: "Apply every schema file of a directory",
		Long: `Apply every *.yaml and *.yml file of DIR in name order. With --watch,
files are applied again whenever they are written, until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := g.open()
			if err != nil {
				return err
			}
			defer st.Close()
			ctx := cmd.Context()
			apply := func(path string) error {
				sc, err := applyFile(ctx, st, path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: schema %s applied\n", filepath.Base(path), sc.Name)
				return nil
			}
			if err := syncDir(args[0], apply); err != nil {
				return err
			}
			if !watchDir {
				return nil
			}
			g.logger.Info("watching schema files", "dir", args[0])
			return watch(ctx, args[0], g.logger, apply)
		},
	}
	cmd.Flags().BoolVar(&watchDir, "watch", false, "apply files again when they change")
	return cmd
}

func newSchemaListCmd(g *globals) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := g.open()
			if err != nil {
				return err
			}
			defer st.Close()
			var opts []store.GetOption
			if all {
				opts = append(opts, store.IncludeInactive())
			}
			schemas, err := st.ListSchemas(cmd.Context(), opts...)
			if err != nil {
				return err
			}
			return printSchemas(cmd.OutOrStdout(), schemas)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include inactive schemas")
	return cmd
}

func newSchemaGetCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "get NAME",
		Short: "Print a schema definition as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := g.open()
			if err != nil {
				return err
			}
			defer st.Close()
			sc, err := st.GetSchema(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(sc)
		},
	}
}

func newSchemaDeleteCmd(g *globals) *cobra.Command {
	var hard bool
	cmd := &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a schema",
		Long: `Mark a schema inactive and keep its table. With --hard the table and
all of its instances are dropped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := g.open()
			if err != nil {
				return err
			}
			defer st.Close()
			var opts []store.DeleteOption
			if hard {
				opts = append(opts, store.Hard())
			}
			if err := st.DeleteSchema(cmd.Context(), args[0], opts...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema %s deleted\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&hard, "hard", false, "drop the table and its instances")
	return cmd
}

// readSchemaFile decodes the schema declaration stored in path.
func readSchemaFile(path string) (schema.CreateSchemaRequest, error) {
	var req schema.CreateSchemaRequest
	data, err := os.ReadFile(path)
	if err != nil {
		return req, err
	}
	if err := yaml.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("parse %s: %w", path, err)
	}
	if req.Name == "" {
		return req, fmt.Errorf("%s: schema name is required", path)
	}
	return req, nil
}

// applyFile creates the schema declared in path, or updates the existing
// schema to match it.
func applyFile(ctx context.Context, st *store.Store, path string) (*schema.Schema, error) {
	req, err := readSchemaFile(path)
	if err != nil {
		return nil, err
	}
	current, err := st.GetSchema(ctx, req.Name)
	switch {
	case objstore.IsSchemaNotFound(err):
		return st.CreateSchema(ctx, req)
	case err != nil:
		return nil, err
	}
	if req.Flags != nil && *req.Flags != current.Flags {
		return nil, fmt.Errorf("%s: flags of schema %s cannot be changed", path, req.Name)
	}
	if req.TableName != "" && req.TableName != current.TableName {
		return nil, fmt.Errorf("%s: table of schema %s cannot be renamed", path, req.Name)
	}
	indexes := req.Indexes
	if indexes == nil {
		indexes = []index.Definition{}
	}
	return st.UpdateSchema(ctx, req.Name, schema.UpdateSchemaRequest{
		Description: &req.Description,
		Columns:     req.Columns,
		Indexes:     indexes,
	})
}

// isSchemaFile reports whether path names a YAML schema file.
func isSchemaFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// syncDir applies the schema files of dir in name order and stops at the
// first failure.
func syncDir(dir string, apply func(string) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && isSchemaFile(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(files)
	for _, f := range files {
		if err := apply(f); err != nil {
			return err
		}
	}
	return nil
}

// watch applies schema files of dir as they are created or written, until
// ctx is done. Failures are logged and do not stop the watch.
func watch(ctx context.Context, dir string, logger *slog.Logger, apply func(string) error) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isSchemaFile(ev.Name) || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if err := apply(ev.Name); err != nil {
				logger.Error("apply schema file", "file", ev.Name, "error", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch schema files", "error", err)
		}
	}
}

func printSchemas(w io.Writer, schemas []*schema.Schema) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTABLE\tCOLUMNS\tACTIVE\tUPDATED")
	for _, sc := range schemas {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%t\t%s\n", sc.Name, sc.TableName, len(sc.Columns), sc.Active, sc.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

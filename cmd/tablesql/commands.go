package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tablesql/internal/config"
	"tablesql/internal/export"
	"tablesql/internal/extracthtml"
	"tablesql/internal/infer"
	"tablesql/internal/mcpserver"
	"tablesql/internal/session"
	"tablesql/internal/source"
	"tablesql/internal/storage"
	"tablesql/internal/table"
	"tablesql/internal/vision"
)

func storageConfig(c config.Config) storage.Config {
	return storage.Config{Kind: c.Storage.Kind, DSN: c.Storage.DSN}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readTable reads the table named by the input location.
func (a *app) readTable(cmd *cobra.Command, args []string) (table.RawTable, error) {
	return a.reader().Read(cmd.Context(), source.Spec{
		Location: a.location(args),
		Table:    a.tableIdx,
		Sheet:    a.sheet,
	})
}

// loaded opens a session with the input table loaded into the store.
func (a *app) loaded(cmd *cobra.Command, args []string) (*session.Session, error) {
	t, err := a.readTable(cmd, args)
	if err != nil {
		return nil, err
	}
	s, err := a.openSession(cmd)
	if err != nil {
		return nil, err
	}
	if err := s.SetTable(cmd.Context(), t); err != nil {
		_ = s.Close()
		return nil, err
	}
	if _, err := s.Load(cmd.Context()); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func newInferCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "infer [file]",
		Short: "Print the inferred type of every column",
		Args:  a.inputArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.readTable(cmd, args)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "COLUMN\tTYPE\tSAMPLES")
			for _, h := range infer.Hints(t.Headers, t.Column) {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", h.Name, h.Type, strings.Join(h.Samples, ", "))
			}
			return tw.Flush()
		},
	}
}

func newMetadataCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "metadata [file]",
		Short: "Generate and print table metadata as JSON",
		Args:  a.inputArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.readTable(cmd, args)
			if err != nil {
				return err
			}
			s, err := a.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.SetTable(cmd.Context(), t); err != nil {
				return err
			}
			meta, src, err := s.GenerateMetadata(cmd.Context())
			if err != nil {
				return err
			}
			a.log.Info("metadata generated", "source", string(src), "columns", len(meta.Columns))
			return export.WriteMetadataJSON(cmd.OutOrStdout(), meta)
		},
	}
}

func newAskCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ask [file] <question>",
		Short: "Answer a question about the table with SQL",
		Args:  a.inputArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.loaded(cmd, args)
			if err != nil {
				return err
			}
			defer s.Close()
			out, err := s.Ask(cmd.Context(), a.rest(args)[0])
			if err != nil {
				if out.SQL != "" {
					return fmt.Errorf("%w (sql: %s)", err, out.SQL)
				}
				return err
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newChartCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chart [file] <question>",
		Short: "Answer a question and recommend a chart for the result",
		Args:  a.inputArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.loaded(cmd, args)
			if err != nil {
				return err
			}
			defer s.Close()
			q := a.rest(args)[0]
			if _, err := s.Ask(cmd.Context(), q); err != nil {
				return err
			}
			rec, cfg, err := s.RecommendChart(cmd.Context(), q)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{"recommendation": rec, "config": cfg})
		},
	}
}

func newVisionCmd(a *app) *cobra.Command {
	var encoded bool
	cmd := &cobra.Command{
		Use:   "vision <image>",
		Short: "Describe a chart image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if encoded {
				if img, err = vision.DecodeImage(string(img)); err != nil {
					return err
				}
			}
			s, err := a.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			d, err := s.AnalyzeImage(cmd.Context(), img)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), d)
		},
	}
	cmd.Flags().BoolVar(&encoded, "base64", false, "the file holds base64 data or a data URL")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Export the table as CSV, metadata JSON or an XLSX workbook",
		Args:  a.inputArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			known := false
			for _, f := range export.Formats {
				known = known || f == format
			}
			if !known {
				return fmt.Errorf("invalid format: %s (must be one of %s)", format, strings.Join(export.Formats, ", "))
			}
			t, err := a.readTable(cmd, args)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			if format == "csv" {
				return export.WriteCSV(w, t)
			}
			s, err := a.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.SetTable(cmd.Context(), t); err != nil {
				return err
			}
			meta, _, err := s.GenerateMetadata(cmd.Context())
			if err != nil {
				return err
			}
			if format == "json" {
				return export.WriteMetadataJSON(w, meta)
			}
			return export.WriteXLSX(w, t, &meta)
		},
	}
	cmd.Flags().StringVar(&format, "format", "csv", "output format: csv, json or xlsx")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file path (default: stdout)")
	return cmd
}

func newTablesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tables [file|dir]",
		Short: "List the tables found in a page, file or directory of pages",
		Args:  a.inputArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			found, err := a.reader().List(cmd.Context(), a.location(args))
			if err != nil {
				return err
			}
			return extracthtml.PrintTables(cmd.OutOrStdout(), found)
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the store and the model backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			st, err := s.Status(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), st)
		},
	}
}

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run as a Model Context Protocol server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			return mcpserver.New(s, a.reader(), version).ServeStdio()
		},
	}
}

func newConfigCmd(a *app) *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.validate(cmd.OutOrStdout()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return nil
		},
	}, &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeJSON(cmd.OutOrStdout(), a.cfg)
		},
	})
	return cfg
}

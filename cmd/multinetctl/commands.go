package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/multinet/internal/core"
	_ "github.com/JonMunkholm/multinet/internal/core/formats" // Register all upload formats
	"github.com/JonMunkholm/multinet/internal/logging"
)

// errRejected signals a file that failed validation. The failures were
// already printed, so main only sets the exit status.
var errRejected = errors.New("validation failed")

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "multinetctl",
		Short:         "Validate multinet upload files offline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			// Results go to stdout; logs go to stderr.
			slog.SetDefault(logging.New(cmd.ErrOrStderr(), logLevel, "text"))
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	root.AddCommand(newFormatsCmd(), newValidateCmd())
	return root
}

func newFormatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List supported upload formats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			for _, def := range core.All() {
				tables := strings.Join(def.Info.Tables("<table>"), ", ")
				fmt.Fprintf(out, "%-12s %-22s %s\n", def.Info.Key, def.Info.ContentType, tables)
			}
			return nil
		},
	}
}

type tableSummary struct {
	Name         string         `json:"name"`
	Kind         core.TableKind `json:"kind"`
	Documents    int            `json:"documents"`
	SkipExisting bool           `json:"skip_existing,omitempty"`
}

type planSummary struct {
	Format string         `json:"format"`
	Tables []tableSummary `json:"tables"`
	Counts map[string]int `json:"counts"`
}

func summarize(format string, plan *core.Plan) planSummary {
	s := planSummary{Format: format, Counts: plan.Counts}
	for _, t := range plan.Tables {
		s.Tables = append(s.Tables, tableSummary{
			Name:         t.Name,
			Kind:         t.Kind,
			Documents:    len(t.Records),
			SkipExisting: t.SkipExisting,
		})
	}
	return s
}

func newValidateCmd() *cobra.Command {
	var (
		format string
		key    string
		table  string
	)

	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Decode and validate a file, printing the table plan or the failures as JSON",
		Long: `Runs the same decoding and validation an upload would, without writing
anything. FILE may be "-" for stdin. Exits 1 when the file is rejected.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := core.Get(format); !ok {
				return fmt.Errorf("%w %q (have %s)", core.ErrUnknownFormat, format, strings.Join(core.Keys(), ", "))
			}

			body, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}

			if table == "" {
				table = tableFromPath(args[0])
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")

			plan, err := core.BuildPlan(format, body, core.BuildOptions{Table: table, KeyField: key})
			if vf, ok := core.AsValidationFailed(err); ok {
				if err := enc.Encode(vf); err != nil {
					return err
				}
				return errRejected
			}
			if err != nil {
				return err
			}
			return enc.Encode(summarize(format, plan))
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "csv", "upload format: "+strings.Join(core.Keys(), ", "))
	cmd.Flags().StringVarP(&key, "key", "k", "", "CSV column to use as _key")
	cmd.Flags().StringVarP(&table, "table", "t", "", "target table or graph name (default: file name)")
	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

// tableFromPath derives a table name from a file name: "data/people.csv"
// becomes "people".
func tableFromPath(path string) string {
	if path == "-" {
		return "stdin"
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

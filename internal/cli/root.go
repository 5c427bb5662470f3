// Package cli implements lighttracectl, a command-line client for the
// LightTrace endpoints of a running host.
package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev" //nolint:gochecknoglobals // overridden with -ldflags

const (
	envURL      = "LIGHTTRACE_URL"
	envBasePath = "LIGHTTRACE_BASE_PATH"
)

// ErrNotConfirmed is returned when reset runs without --yes.
var ErrNotConfirmed = errors.New("reset not confirmed; pass --yes")

type globalFlags struct {
	url      string
	basePath string
	timeout  time.Duration
}

func (g *globalFlags) client() (*Client, error) {
	return NewClient(g.url, g.basePath, g.timeout)
}

// NewRootCommand builds the lighttracectl command tree.
func NewRootCommand() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "lighttracectl",
		Short: "Inspect and reset the LightTrace store of a running host",
		Long: `lighttracectl reads the LightTrace report of a running host, downloads it,
shows the dashboard configuration and clears the trace store.

Example:
  lighttracectl report
  lighttracectl --url http://svc:9080 --base-path /diag download -o traces.md
  lighttracectl reset --yes`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&g.url, "url", envOr(envURL, "http://localhost:9080"), "host URL (or set "+envURL+")")
	root.PersistentFlags().StringVar(&g.basePath, "base-path", envOr(envBasePath, "/monitoring"), "LightTrace mount path (or set "+envBasePath+")")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", defaultTimeout, "request timeout")

	root.AddCommand(
		newReportCmd(g),
		newDownloadCmd(g),
		newConfigCmd(g),
		newResetCmd(g),
		newRecordCmd(g),
	)
	return root
}

func newReportCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print the Markdown trace report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			report, err := c.Report(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), report)
			return err
		},
	}
}

func newDownloadCmd(g *globalFlags) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Save the trace report to a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			body, name, err := c.Download(cmd.Context())
			if err != nil {
				return err
			}
			if output == "" {
				output = filepath.Base(name)
			}
			if err := os.WriteFile(output, body, 0o600); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "saved %d bytes to %s\n", len(body), output)
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "destination file (default: server-suggested name)")
	return cmd
}

func newConfigCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the dashboard configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			raw, err := c.Configuration(cmd.Context())
			if err != nil {
				return err
			}
			var out bytes.Buffer
			if err := json.Indent(&out, raw, "", "  "); err != nil {
				return fmt.Errorf("format configuration: %w", err)
			}
			out.WriteByte('\n')
			_, err = out.WriteTo(cmd.OutOrStdout())
			return err
		},
	}
}

func newResetCmd(g *globalFlags) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear every stored trace entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return ErrNotConfirmed
			}
			c, err := g.client()
			if err != nil {
				return err
			}
			msg, err := c.Reset(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), msg)
			return err
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the reset")
	return cmd
}

func newRecordCmd(g *globalFlags) *cobra.Command {
	var (
		e        Event
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Submit one trace entry through the host's /events endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			e.DurationMS = float64(duration) / float64(time.Millisecond)
			id, err := c.Record(cmd.Context(), e)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
			return err
		},
	}
	cmd.Flags().StringVar(&e.Category, "category", "cli", "entry category")
	cmd.Flags().StringVar(&e.Operation, "operation", "", "entry operation")
	cmd.Flags().StringVar(&e.Status, "status", "", "entry status (default ok)")
	cmd.Flags().StringVar(&e.Message, "message", "", "optional message")
	cmd.Flags().DurationVar(&duration, "duration", 0, "operation duration, e.g. 1.5s")
	cmd.Flags().StringToStringVar(&e.Attributes, "attr", nil, "attribute key=value (repeatable)")
	_ = cmd.MarkFlagRequired("operation")
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hamed0406/uptimeagent/internal/domain"
	"github.com/hamed0406/uptimeagent/internal/runner"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type client struct {
	base string
	key  string
	http *http.Client
}

func (c *client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.base, "/")+path, nil)
	if err != nil {
		return err
	}
	if c.key != "" {
		req.Header.Set("X-API-Key", c.key)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contacting API: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)
		if e.Error != "" {
			return fmt.Errorf("API returned %s: %s", resp.Status, e.Error)
		}
		return fmt.Errorf("API returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func newRootCommand() *cobra.Command {
	c := &client{http: &http.Client{Timeout: 10 * time.Second}}

	api := os.Getenv("API_BASE")
	if api == "" {
		api = "http://localhost:8080"
	}

	cmd := &cobra.Command{
		Use:          "uptimectl",
		Short:        "Talks to a running agent's status API",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&c.base, "api", api, "Status API base URL (env API_BASE)")
	cmd.PersistentFlags().StringVar(&c.key, "key", os.Getenv("API_KEY"), "API key (env API_KEY)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show the runner state",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				var st runner.Status
				if err := c.do(cmd.Context(), http.MethodGet, "/api/status", &st); err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), st)
				return nil
			},
		},
		&cobra.Command{
			Use:   "results [label]",
			Short: "Show the latest result of every probe, or of one probe",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var rows []domain.ResultRecord
				if len(args) == 1 {
					var rec domain.ResultRecord
					if err := c.do(cmd.Context(), http.MethodGet, "/api/results/"+url.PathEscape(args[0]), &rec); err != nil {
						return err
					}
					rows = append(rows, rec)
				} else if err := c.do(cmd.Context(), http.MethodGet, "/api/results", &rows); err != nil {
					return err
				}
				printResults(cmd.OutOrStdout(), rows)
				return nil
			},
		},
		&cobra.Command{
			Use:   "stop",
			Short: "Stop the periodic probes; the agent then runs its shutdown step",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := c.do(cmd.Context(), http.MethodPost, "/api/stop", nil); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Stop requested.")
				return nil
			},
		},
	)
	return cmd
}

func printStatus(w io.Writer, st runner.Status) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "client\t%s\n", st.ClientID)
	fmt.Fprintf(tw, "running\t%v\n", st.Running)
	fmt.Fprintf(tw, "busy\t%v\n", st.Busy)
	fmt.Fprintf(tw, "schedule\t%s\n", orDash(st.Schedule))
	fmt.Fprintf(tw, "interval\t%s\n", st.Interval)
	fmt.Fprintf(tw, "probes\t%d\n", st.Probes)
	fmt.Fprintf(tw, "cycles\t%d (%d skipped)\n", st.Cycles, st.SkippedCycles)
	if st.LastCycleAt != nil {
		fmt.Fprintf(tw, "last cycle\t%s\n", st.LastCycleAt.Format(time.RFC3339))
	}
	_ = tw.Flush()
}

func printResults(w io.Writer, rows []domain.ResultRecord) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No results yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LABEL\tOUTCOME\tCHECKED\tDESCRIPTION")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Label, r.Outcome, r.CheckedAt.Format(time.RFC3339), orDash(firstLine(r.Description)))
	}
	_ = tw.Flush()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

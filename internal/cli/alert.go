package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pratik-mahalle/secwatch/pkg/client"
	"github.com/spf13/cobra"
)

func newAlertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alert",
		Short: "Send alerts and browse the history",
	}

	cmd.AddCommand(newAlertSendCmd())
	cmd.AddCommand(newAlertWebhookCmd())
	cmd.AddCommand(newAlertListCmd())

	return cmd
}

func newAlertSendCmd() *cobra.Command {
	var a client.Alert
	var metrics []string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Dispatch a single alert",
		Example: `  secwatch alert send --name FailedLoginAttempt --severity critical \
    --instance web-1 --description "Failed login attempt for user: admin" \
    --source-ip 203.0.113.7 --metric failed_login_rate=4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.Instance == "" {
				a.Instance, _ = os.Hostname()
			}
			m, err := parseMetrics(metrics)
			if err != nil {
				return err
			}
			a.Metrics = m

			res, err := apiClient.Alerts().Send(context.Background(), a)
			if err != nil {
				return fmt.Errorf("failed to send alert: %w", err)
			}
			return printDispatchResult(res)
		},
	}

	cmd.Flags().StringVar(&a.AlertName, "name", "", "alert name")
	cmd.Flags().StringVar(&a.Severity, "severity", "warning", "critical, high, error, warning or info")
	cmd.Flags().StringVar(&a.Instance, "instance", "", "reporting instance (default hostname)")
	cmd.Flags().StringVar(&a.Description, "description", "", "human readable description")
	cmd.Flags().StringVar(&a.SourceIP, "source-ip", "", "offending client address")
	cmd.Flags().StringVar(&a.User, "user", "", "user involved")
	cmd.Flags().StringArrayVar(&metrics, "metric", nil, "metric as key=value, repeatable")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("description")

	return cmd
}

func newAlertWebhookCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Replay an Alertmanager webhook body",
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = os.Stdin
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			var payload client.WebhookPayload
			if err := json.NewDecoder(r).Decode(&payload); err != nil {
				return fmt.Errorf("invalid webhook body: %w", err)
			}

			res, err := apiClient.Alerts().SendWebhook(context.Background(), payload)
			if err != nil {
				return fmt.Errorf("failed to send webhook: %w", err)
			}

			format := getOutputFormat()
			if format != "table" {
				return printOutput(res)
			}

			fmt.Printf("Received %d, dispatched %d, rejected %d\n", res.Received, len(res.Dispatched), len(res.Rejected))
			for _, rej := range res.Rejected {
				fmt.Printf("  [-] alert %d: %s\n", rej.Index, rej.Error)
			}
			for i := range res.Dispatched {
				fmt.Println()
				renderDispatchResult(&res.Dispatched[i])
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "webhook JSON file, - for stdin")

	return cmd
}

func newAlertListCmd() *cobra.Command {
	var opts client.ListOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List persisted alerts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := apiClient.Alerts().List(context.Background(), &opts)
			if err != nil {
				return fmt.Errorf("failed to list alerts: %w", err)
			}

			format := getOutputFormat()
			if format != "table" {
				return printOutput(page)
			}

			t := NewTable("ID", "TIME", "NAME", "SEVERITY", "INSTANCE", "SOURCE IP", "DESCRIPTION")
			for _, a := range page.Data {
				t.AddRow(
					strconv.FormatInt(a.ID, 10),
					a.OccurredAt.Local().Format("2006-01-02 15:04:05"),
					a.AlertName,
					formatSeverity(a.Severity),
					a.Instance,
					a.SourceIP,
					truncate(a.Description, 50),
				)
			}
			t.Render()
			fmt.Printf("\nPage %d of %d (%d alerts)\n", page.Page, page.TotalPages, page.TotalItems)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "filter by alert name")
	cmd.Flags().StringVar(&opts.Severity, "severity", "", "filter by severity")
	cmd.Flags().StringVar(&opts.SourceIP, "source-ip", "", "filter by source IP")
	cmd.Flags().IntVar(&opts.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&opts.PageSize, "page-size", 20, "alerts per page")

	return cmd
}

// parseMetrics turns key=value pairs into a metrics map. Numeric and boolean
// values keep their type.
func parseMetrics(pairs []string) (map[string]interface{}, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]interface{}, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid metric %q, want key=value", p)
		}
		if n, err := strconv.ParseFloat(value, 64); err == nil && !math.IsNaN(n) && !math.IsInf(n, 0) {
			out[key] = n
		} else if b, err := strconv.ParseBool(value); err == nil {
			out[key] = b
		} else {
			out[key] = value
		}
	}
	return out, nil
}

func printDispatchResult(res *client.DispatchResult) error {
	format := getOutputFormat()
	if format != "table" {
		return printOutput(res)
	}
	renderDispatchResult(res)
	return nil
}

func renderDispatchResult(res *client.DispatchResult) {
	fmt.Printf("Alert %s (%s)\n", res.AlertID, res.AlertName)

	names := make([]string, 0, len(res.Outcomes))
	for name := range res.Outcomes {
		names = append(names, name)
	}
	sort.Strings(names)

	t := NewTable("SINK", "STATUS", "DURATION", "REASON")
	for _, name := range names {
		o := res.Outcomes[name]
		t.AddRow(name, formatStatus(o.Status), fmt.Sprintf("%dms", o.DurationMS), truncate(o.Reason, 60))
	}
	t.Render()
}

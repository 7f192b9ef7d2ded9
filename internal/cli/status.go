package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/pratik-mahalle/secwatch/pkg/client"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check server liveness and readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			summary := map[string]interface{}{}
			live, liveErr := apiClient.Health(ctx)
			if liveErr == nil {
				summary["live"] = live.Status
			} else {
				summary["live"] = "unavailable"
			}
			ready, readyErr := apiClient.Ready(ctx)
			if readyErr == nil {
				summary["ready"] = ready.Status
				summary["database"] = ready.Database
			} else {
				summary["ready"] = "unavailable"
				if apiErr, ok := client.AsAPIError(readyErr); ok {
					summary["reason"] = apiErr.Message
				}
			}

			format := getOutputFormat()
			if format != "table" {
				if err := printOutput(summary); err != nil {
					return err
				}
			} else {
				fmt.Println("secwatch server")
				fmt.Println(strings.Repeat("=", 40))
				fmt.Printf("  Live:      %s\n", formatStatus(fmt.Sprint(summary["live"])))
				fmt.Printf("  Ready:     %s\n", formatStatus(fmt.Sprint(summary["ready"])))
				if db, ok := summary["database"].(string); ok && db != "" {
					fmt.Printf("  History:   %s\n", formatStatus(db))
				}
				if reason, ok := summary["reason"]; ok {
					fmt.Printf("  Reason:    %v\n", reason)
				}
			}

			if liveErr != nil {
				return fmt.Errorf("server unreachable: %w", liveErr)
			}
			return readyErr
		},
	}
}

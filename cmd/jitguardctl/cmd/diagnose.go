package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/terraconstructs/jitaccess/internal/diagnostics"
)

var diagnoseTargets []string

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Run a readiness check against one or more collaborator endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		checks := make([]diagnostics.Diagnosable, len(diagnoseTargets))
		for i, target := range diagnoseTargets {
			checks[i] = &httpReachable{name: target, client: http.DefaultClient}
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		results, healthy := diagnostics.New(checks...).Run(ctx)
		for _, r := range results {
			status := "ok"
			if !r.Successful {
				status = "FAILED: " + r.Details
			}
			fmt.Printf("%-40s %s\n", r.Name, status)
		}
		if !healthy {
			return fmt.Errorf("one or more collaborators failed their readiness check")
		}
		return nil
	},
}

func init() {
	diagnoseCmd.Flags().StringSliceVar(&diagnoseTargets, "target", nil, "collaborator URL to probe (repeatable)")
}

// httpReachable is a diagnostics.Diagnosable that considers a collaborator
// healthy if it responds to a GET with any non-5xx status.
type httpReachable struct {
	name   string
	client *http.Client
}

func (h *httpReachable) Name() string { return h.name }

func (h *httpReachable) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.name, nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}

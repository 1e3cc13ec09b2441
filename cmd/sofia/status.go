package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/vivoly/sofia/internal/pipeline"
)

func buildStatusCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of a running instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8520", "Admin API address")
	return cmd
}

func runStatus(cmd *cobra.Command, addr string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/status", addr))
	if err != nil {
		return fmt.Errorf("is sofia running? %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("admin API returned %s", resp.Status)
	}

	var status pipeline.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Transport:  %s\n", status.Transport.State)
	if status.Transport.AuthArtifact != "" {
		fmt.Fprintf(out, "Pairing:    scan pending\n")
	}
	fmt.Fprintf(out, "Queue:      %d queued, %d/%d sent this hour, est. wait %s\n",
		status.Delivery.QueueDepth, status.Delivery.SentThisHour,
		status.Delivery.MaxPerHour, status.Delivery.EstimatedWait)
	fmt.Fprintf(out, "Work hours: %v\n", status.Delivery.WithinHours)
	fmt.Fprintf(out, "Uptime:     %s\n", time.Since(status.StartedAt).Round(time.Second))
	for name, usage := range status.Usage {
		fmt.Fprintf(out, "Usage[%s]: %d requests, $%.4f (%s)\n",
			name, usage.Requests, usage.Cost, usage.Model)
	}
	return nil
}

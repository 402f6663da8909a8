package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goletan/servicehost/internal/api"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var statusOutput string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the binding state of every service",
	Long: `Query the control API of a running host and print each service with its
binding state.

Examples:
  servicehost status
  servicehost status -o json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	if statusOutput != "table" && statusOutput != "json" {
		return fmt.Errorf("unsupported output format %q", statusOutput)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.API.Enabled {
		return fmt.Errorf("control API is disabled in the configuration")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+cfg.API.Listen+"/api/v1/services", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("host is not running at %s: %w", cfg.API.Listen, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status from host: %s", resp.Status)
	}

	var services []api.ServiceStatus
	if err := json.NewDecoder(resp.Body).Decode(&services); err != nil {
		return fmt.Errorf("failed to decode status: %w", err)
	}

	if statusOutput == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(services)
	}

	printStatusTable(cmd.OutOrStdout(), services)
	return nil
}

func printStatusTable(w io.Writer, services []api.ServiceStatus) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Name", "State", "Control", "Connection"})

	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	for _, s := range services {
		conn := s.Connection
		if conn == "" {
			conn = "-"
		}
		table.Append([]string{s.Name, s.State, s.ControlAddr, conn})
	}
	table.Render()
}

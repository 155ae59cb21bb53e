package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sentrymesh/sentry/internal/daemon"
	"github.com/sentrymesh/sentry/internal/domain"
)

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(incidentsCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the health of a running daemon",
	RunE:  runStatus,
}

var incidentsCmd = &cobra.Command{
	Use:   "incidents",
	Short: "List open incidents on a running daemon",
	RunE:  runIncidents,
}

func apiGet(path string, out any) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}
	url := fmt.Sprintf("http://%s:%d%s", cfg.API.Host, cfg.API.Port, path)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()

	return json.NewDecoder(resp.Body).Decode(out)
}

func runStatus(cmd *cobra.Command, args []string) error {
	var out struct {
		Status     string `json:"status"`
		Components []struct {
			Name         string  `json:"name"`
			Healthy      bool    `json:"healthy"`
			ErrorRate    float64 `json:"error_rate"`
			AvgLatencyMs float64 `json:"avg_latency_ms"`
		} `json:"components"`
	}
	if err := apiGet("/health", &out); err != nil {
		return err
	}

	fmt.Printf("Status: %s\n", out.Status)
	if len(out.Components) == 0 {
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COMPONENT\tHEALTHY\tERROR RATE\tAVG LATENCY")
	for _, c := range out.Components {
		fmt.Fprintf(w, "%s\t%t\t%.2f%%\t%.1fms\n",
			c.Name, c.Healthy, c.ErrorRate*100, c.AvgLatencyMs)
	}
	return w.Flush()
}

func runIncidents(cmd *cobra.Command, args []string) error {
	var out struct {
		Active []domain.Incident `json:"active"`
	}
	if err := apiGet("/api/incidents", &out); err != nil {
		return err
	}

	if len(out.Active) == 0 {
		fmt.Println("No open incidents.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSEVERITY\tSTATUS\tOPENED\tTITLE")
	for _, inc := range out.Active {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			inc.ID, inc.Severity.String(), inc.Status.String(),
			inc.CreatedAt.Format("2006-01-02 15:04"), inc.Title)
	}
	return w.Flush()
}

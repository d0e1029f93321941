package cli

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var metricsAddr string

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Start a Prometheus metrics server",
	Long: `Start a Prometheus metrics server for Haven operations.

This exposes a /metrics endpoint with Prometheus-format metrics about:
- Acquisitions (count by outcome, duration)
- Recovery attempts per cascade strategy
- Retry attempts
- Backup operations and stored bytes
- Degraded resources and health checks

The metrics server runs in the foreground until interrupted.

Examples:
  haven metrics                  # Start on default port :2112
  haven metrics --addr :9090     # Start on custom port`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		c := requireClient()
		defer c.Close()

		mux := http.NewServeMux()
		mux.Handle("/metrics", c.MetricsHandler())

		fmt.Printf("Serving metrics at http://%s/metrics\n", metricsAddr)
		fmt.Println("Press Ctrl+C to stop")

		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			fmtErr("metrics server: %v", err)
			os.Exit(1)
		}
	},
}

func init() {
	metricsCmd.Flags().StringVarP(&metricsAddr, "addr", "a", ":2112", "address to listen on")
	rootCmd.AddCommand(metricsCmd)
}

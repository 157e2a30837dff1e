package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/anstrom/portsweep/internal/daemon"
)

var (
	serveMigrate bool
	serveHost    string
	servePort    int
	servePIDFile string
)

// serveCmd starts the HTTP API with background jobs and schedules.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Start the REST and websocket API. Scans submitted through the API run
as background jobs persisted in PostgreSQL; progress is pushed to websocket
subscribers at /api/v1/ws. Schedules from the configuration file start
alongside the server. Send SIGUSR1 to log a status snapshot.`,
	Example: `  portsweep serve
  portsweep serve --config /etc/portsweep.yaml --port 9090 --pid-file /run/portsweep.pid`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", true, "apply pending database migrations on start")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen address (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default from config)")
	serveCmd.Flags().StringVar(&servePIDFile, "pid-file", "", "write the process ID to this file")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := appConfig
	if cmd.Flags().Changed("host") {
		cfg.API.ListenAddr = serveHost
	}
	if cmd.Flags().Changed("port") {
		cfg.API.Port = servePort
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := daemon.New(cfg, daemon.Options{
		Migrate: serveMigrate,
		PIDFile: servePIDFile,
		Version: version,
	})
	return d.Run(ctx)
}

package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/dl-alexandre/gdrv-gateway/internal/logging"
	"github.com/dl-alexandre/gdrv-gateway/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP gateway",
	Long: `Run the HTTP gateway.

The service account credential is checked once at startup; the command
exits with an error if it cannot obtain a token.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveListen string
	serveRoot   string
)

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (overrides listenAddr)")
	serveCmd.Flags().StringVar(&serveRoot, "root-folder", "", "Folder listed by /list (overrides rootFolder)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveListen != "" {
		cfg.ListenAddr = serveListen
	}
	if serveRoot != "" {
		cfg.RootFolder = serveRoot
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, err := newGateway(ctx, cfg, logger)
	if err != nil {
		logger.Error("Startup failed", logging.F("error", err.Error()))
		return err
	}

	if cfg.RootFolder == "" {
		logger.Warn("No root folder configured; /list requires a folder id")
	}

	srv := server.New(server.Options{
		ListenAddr:  cfg.ListenAddr,
		CORSOrigins: cfg.CORSOrigins,
	}, gw.listing, gw.stream, gw.tunnel, logger)

	return srv.ListenAndServe(ctx)
}

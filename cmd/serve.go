package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/fingerprint-id/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the fingerprint-id HTTP API.

The API enrolls, identifies, lists and deletes identities. Samples are either
uploaded with the request or captured from the configured sensor spool.
Every route except /api/v1/health requires WEB_API_TOKEN when it is set.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	host, port := a.cfg.Web.Host, a.cfg.Web.Port
	if cmd.Flags().Changed("port") {
		port = mustGetInt(cmd, "port")
	}
	if cmd.Flags().Changed("host") {
		host = mustGetString(cmd, "host")
	}

	stats := a.engine.Stats()
	fmt.Printf("Gallery loaded: %d identities (%s classifier, %s)\n", stats.Records, stats.ClassifierKind, stats.ClassifierState)
	if a.cfg.Sensor.SpoolDir == "" {
		fmt.Printf("No sensor spool configured, only uploaded samples are accepted\n")
	}

	server := web.NewServer(a.engine, web.Options{
		Host:           host,
		Port:           port,
		APIToken:       a.cfg.Web.APIToken,
		AllowedOrigins: a.cfg.Web.AllowedOrigins,
		RequestTimeout: a.cfg.Web.RequestTimeout,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting fingerprint-id API on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}

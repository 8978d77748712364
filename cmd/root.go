package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fingerprint-id",
	Short: "Fingerprint enrollment and identification engine",
	Long: `fingerprint-id enrolls fingerprints from a capture sensor (or sample files),
keeps the enrolled gallery on disk or in PostgreSQL and identifies new probes
against it with a nearest-neighbor classifier and the sensor's native matcher.

Configuration is read from environment variables (a .env file is honoured),
layered over built-in defaults and an optional YAML file named by FPID_CONFIG.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

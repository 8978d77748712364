package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture a fingerprint image and save it as PNG",
	Long: `Capture a raw grayscale image from the sensor and write it as a PNG file.
Nothing is enrolled or matched.

Examples:
  fingerprint-id capture --output finger.png`,
	RunE: runCapture,
}

func init() {
	rootCmd.AddCommand(captureCmd)

	captureCmd.Flags().StringP("output", "o", "fingerprint.png", "Output PNG file")
}

func runCapture(cmd *cobra.Command, args []string) error {
	output := mustGetString(cmd, "output")

	ctx := context.Background()
	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Printf("Place finger on the sensor...\n")
	data, err := a.engine.CaptureImage(ctx)
	if err != nil {
		return fmt.Errorf("capture failed: %w", requireSensor(err))
	}
	if err := os.WriteFile(output, data, 0o640); err != nil { //nolint:gosec // operator supplied path
		return fmt.Errorf("writing %s: %w", output, err)
	}
	fmt.Printf("Saved %s (%d bytes)\n", output, len(data))
	return nil
}

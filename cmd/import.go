package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
	"github.com/kozaktomas/fingerprint-id/internal/engine"
	"github.com/kozaktomas/fingerprint-id/internal/sensor"
)

var importCmd = &cobra.Command{
	Use:   "import <directory>",
	Short: "Bulk-enroll a directory of fingerprint samples",
	Long: `Enroll every sample file in a directory.

Files named "<id>_<alias>.<ext>" are enrolled under that id; any other file
name becomes the alias and receives the next free id. Underscores in aliases
are read as spaces. Supported files are PNG, JPEG, BMP and GIF images and raw
template dumps ending in .tpl. Samples that are already enrolled are skipped.

Examples:
  # Import with a progress bar
  fingerprint-id import ./samples

  # Stop at the first failure and print a JSON summary
  fingerprint-id import ./samples --stop-on-error --json`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().Bool("stop-on-error", false, "Abort on the first sample that fails to enroll")
	importCmd.Flags().Bool("json", false, "Output as JSON instead of progress bar")
}

// ImportResult represents the result of an import run.
type ImportResult struct {
	Success       bool     `json:"success"`
	FilesScanned  int      `json:"files_scanned"`
	Enrolled      int      `json:"enrolled"`
	Skipped       int      `json:"skipped"`
	Errors        int      `json:"errors"`
	Failures      []string `json:"failures,omitempty"`
	DurationMs    int64    `json:"duration_ms"`
	DurationHuman string   `json:"duration_human,omitempty"`
}

var sampleExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".bmp": true, ".gif": true, ".tpl": true,
}

// sampleFiles returns the importable files of dir in name order.
func sampleFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if sampleExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// parseSampleName derives the enrollment request from a sample file name.
func parseSampleName(path string) engine.EnrollRequest {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	var id int64
	if prefix, rest, ok := strings.Cut(stem, "_"); ok && rest != "" {
		if n, err := strconv.ParseInt(prefix, 10, 64); err == nil && n > 0 {
			id, stem = n, rest
		}
	}
	alias := strings.Join(strings.Fields(strings.ReplaceAll(stem, "_", " ")), " ")
	return engine.EnrollRequest{ID: id, Alias: alias}
}

func runImport(cmd *cobra.Command, args []string) error {
	stopOnError := mustGetBool(cmd, "stop-on-error")
	jsonOutput := mustGetBool(cmd, "json")

	files, err := sampleFiles(args[0])
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := openApp(ctx, appOptions{noSensor: true})
	if err != nil {
		return err
	}
	defer a.Close()

	startTime := time.Now()
	result := ImportResult{FilesScanned: len(files)}

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		fmt.Printf("Importing %d samples from %s\n", len(files), args[0])
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetDescription("Enrolling"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("samples"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	for _, path := range files {
		err := importSample(ctx, a.engine, path)
		switch {
		case err == nil:
			result.Enrolled++
		case errors.Is(err, biometric.ErrDuplicateFeature), errors.Is(err, biometric.ErrDuplicateIdentity):
			result.Skipped++
		default:
			result.Errors++
			result.Failures = append(result.Failures, fmt.Sprintf("%s: %v", filepath.Base(path), err))
		}
		if bar != nil {
			_ = bar.Add(1)
		}
		if stopOnError && result.Errors > 0 {
			break
		}
	}

	duration := time.Since(startTime)
	result.Success = result.Errors == 0
	result.DurationMs = duration.Milliseconds()
	result.DurationHuman = formatDuration(duration)

	if jsonOutput {
		return outputJSON(result)
	}

	fmt.Printf("\n\nImport complete!\n")
	fmt.Printf("  Files scanned: %d\n", result.FilesScanned)
	fmt.Printf("  Enrolled:      %d\n", result.Enrolled)
	fmt.Printf("  Skipped:       %d\n", result.Skipped)
	if result.Errors > 0 {
		fmt.Printf("  Errors:        %d\n", result.Errors)
		for _, f := range result.Failures {
			fmt.Printf("    %s\n", f)
		}
	}
	fmt.Printf("  Duration:      %s\n", result.DurationHuman)
	return nil
}

func importSample(ctx context.Context, eng *engine.Engine, path string) error {
	sample, err := sensor.LoadSampleFile(path)
	if err != nil {
		return err
	}
	res, err := eng.EnrollSample(ctx, parseSampleName(path), sample)
	if err != nil {
		return err
	}
	if res.AuditErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: %s: %v\n", filepath.Base(path), res.AuditErr)
	}
	return nil
}

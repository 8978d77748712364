package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/fingerprint-id/internal/engine"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Enroll a fingerprint under an alias",
	Long: `Capture a fingerprint and enroll it as a new identity.

The sample comes from --sample (an image file, or a raw template dump ending
in .tpl) or from the configured sensor spool. Without --id the next free
identity id is assigned.

Examples:
  # Enroll from the sensor spool
  fingerprint-id enroll --alias alice

  # Enroll a stored image under a fixed id
  fingerprint-id enroll --alias bob --id 7 --sample bob.png`,
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("alias", "", "Display alias of the identity (required)")
	enrollCmd.Flags().Int64("id", 0, "Identity id (0 assigns the next free id)")
	enrollCmd.Flags().String("sample", "", "Sample file to enroll instead of capturing from the sensor")
	enrollCmd.Flags().Bool("json", false, "Output as JSON")
	_ = enrollCmd.MarkFlagRequired("alias")
}

// EnrollOutput is the JSON result of the enroll command.
type EnrollOutput struct {
	ID         int64  `json:"id"`
	Alias      string `json:"alias"`
	SampleRef  string `json:"sample_ref,omitempty"`
	AuditError string `json:"audit_error,omitempty"`
}

func runEnroll(cmd *cobra.Command, args []string) error {
	alias := mustGetString(cmd, "alias")
	id := mustGetInt64(cmd, "id")
	jsonOutput := mustGetBool(cmd, "json")

	ctx := context.Background()
	a, err := openApp(ctx, appOptions{samplePath: mustGetString(cmd, "sample")})
	if err != nil {
		return err
	}
	defer a.Close()

	if !jsonOutput {
		fmt.Printf("Place finger on the sensor...\n")
	}
	res, err := a.engine.Enroll(ctx, engine.EnrollRequest{ID: id, Alias: alias})
	if err != nil {
		return fmt.Errorf("enrollment failed: %w", requireSensor(err))
	}

	if jsonOutput {
		out := EnrollOutput{ID: res.Record.ID, Alias: res.Record.Alias, SampleRef: res.Record.SampleRef}
		if res.AuditErr != nil {
			out.AuditError = res.AuditErr.Error()
		}
		return outputJSON(out)
	}

	fmt.Printf("Enrolled %q as identity %d\n", res.Record.Alias, res.Record.ID)
	if res.Record.SampleRef != "" {
		fmt.Printf("  Display image: %s\n", res.Record.SampleRef)
	}
	printAuditWarning(res.AuditErr)
	return nil
}

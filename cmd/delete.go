package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an enrolled identity",
	Long: `Remove an identity from the gallery, retrain the classifier and persist the
result. The identity's display image, directory entry and sensor slot are
cleaned up afterwards; failures there are reported as warnings.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)

	deleteCmd.Flags().Bool("json", false, "Output as JSON")
}

// DeleteOutput is the JSON result of the delete command.
type DeleteOutput struct {
	ID         int64  `json:"id"`
	Alias      string `json:"alias"`
	AuditError string `json:"audit_error,omitempty"`
}

func runDelete(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id < 0 {
		return fmt.Errorf("invalid identity id %q", args[0])
	}

	ctx := context.Background()
	a, err := openApp(ctx, appOptions{noSensor: true})
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.engine.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}

	if jsonOutput {
		out := DeleteOutput{ID: res.Record.ID, Alias: res.Record.Alias}
		if res.AuditErr != nil {
			out.AuditError = res.AuditErr.Error()
		}
		return outputJSON(out)
	}

	fmt.Printf("Deleted identity %d (%s)\n", res.Record.ID, res.Record.Alias)
	fmt.Printf("Remaining classifier state: %s\n", a.engine.ClassifierState())
	printAuditWarning(res.AuditErr)
	return nil
}

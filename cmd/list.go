package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/fingerprint-id/internal/engine"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled identities",
	Long: `List enrolled identities in enrollment order.

--alias keeps identities whose alias contains every word of the filter,
ignoring case and diacritics. --directory lists the aliases recorded in the
metadata directory instead of the gallery.

Examples:
  fingerprint-id list
  fingerprint-id list --alias "novak" --limit 20
  fingerprint-id list --directory --json`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().String("alias", "", "Filter by alias words")
	listCmd.Flags().Int("offset", 0, "Skip this many identities")
	listCmd.Flags().Int("limit", 0, "Maximum number of identities (0 = all)")
	listCmd.Flags().Bool("directory", false, "List the metadata directory instead of the gallery")
	listCmd.Flags().Bool("json", false, "Output as JSON")
}

func runList(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	offset := mustGetInt(cmd, "offset")
	limit := mustGetInt(cmd, "limit")
	if offset < 0 || limit < 0 {
		return fmt.Errorf("--offset and --limit must not be negative")
	}

	ctx := context.Background()
	a, err := openApp(ctx, appOptions{noSensor: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if mustGetBool(cmd, "directory") {
		aliases, err := a.engine.DirectoryAliases(ctx)
		if err != nil {
			return fmt.Errorf("reading directory: %w", err)
		}
		if jsonOutput {
			return outputJSON(aliases)
		}
		for _, entry := range aliases {
			fmt.Printf("%-6d %-30s %s\n", entry.IdentityID, entry.Alias, entry.EnrolledAt.Format(time.RFC3339))
		}
		fmt.Printf("\n%d identities in directory\n", len(aliases))
		return nil
	}

	identities := a.engine.List(ctx, engine.ListQuery{
		Alias:  mustGetString(cmd, "alias"),
		Offset: offset,
		Limit:  limit,
	})
	if jsonOutput {
		return outputJSON(identities)
	}

	if len(identities) == 0 {
		fmt.Println("No identities enrolled")
		return nil
	}
	fmt.Printf("%-6s %-30s %s\n", "ID", "ALIAS", "SAMPLE")
	for _, id := range identities {
		fmt.Printf("%-6d %-30s %s\n", id.ID, id.Alias, id.SampleRef)
	}
	fmt.Printf("\n%d identities\n", len(identities))
	return nil
}

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
	"github.com/kozaktomas/fingerprint-id/internal/matcher"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Identify a fingerprint against the enrolled gallery",
	Long: `Capture a fingerprint and identify it.

The verdict is one of matched, no_match or ambiguous. Ambiguous verdicts list
the identities the probe is equally close to.

Examples:
  # Identify from the sensor spool
  fingerprint-id match

  # Identify a stored image and print JSON
  fingerprint-id match --sample probe.png --json`,
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().String("sample", "", "Sample file to identify instead of capturing from the sensor")
	matchCmd.Flags().Bool("json", false, "Output as JSON")
}

// MatchOutput is the JSON result of the match command.
type MatchOutput struct {
	Outcome    matcher.Outcome   `json:"outcome"`
	ID         int64             `json:"id,omitempty"`
	Alias      string            `json:"alias,omitempty"`
	Confidence float64           `json:"confidence,omitempty"`
	Distance   *float64          `json:"distance,omitempty"`
	Source     string            `json:"source,omitempty"`
	Candidates []CandidateOutput `json:"candidates,omitempty"`
	EventID    string            `json:"event_id,omitempty"`
	AuditError string            `json:"audit_error,omitempty"`
}

// CandidateOutput is one identity of an ambiguous verdict.
type CandidateOutput struct {
	ID       int64   `json:"id"`
	Alias    string  `json:"alias"`
	Distance float64 `json:"distance"`
}

func runMatch(cmd *cobra.Command, args []string) error {
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
	res, err := a.engine.Match(ctx)
	if err != nil {
		return fmt.Errorf("match failed: %w", requireSensor(err))
	}

	out := MatchOutput{Outcome: res.Verdict.Outcome()}
	if res.Event != nil {
		out.EventID = res.Event.EventID
	}
	if res.AuditErr != nil {
		out.AuditError = res.AuditErr.Error()
	}

	switch v := res.Verdict.(type) {
	case matcher.Matched:
		out.ID, out.Alias, out.Confidence, out.Source = v.IdentityID, v.Alias, v.Confidence, string(v.Source)
		if v.Source != biometric.SourceNative {
			d := v.Distance
			out.Distance = &d
		}
	case matcher.NoMatch:
		if v.HasBestDistance {
			d := v.BestDistance
			out.Distance = &d
		}
	case matcher.Ambiguous:
		for _, c := range v.Candidates {
			out.Candidates = append(out.Candidates, CandidateOutput{ID: c.IdentityID, Alias: c.Alias, Distance: c.Distance})
		}
	}

	if jsonOutput {
		return outputJSON(out)
	}

	switch out.Outcome {
	case matcher.OutcomeMatched:
		fmt.Printf("Matched %q (id %d) with confidence %.3f via %s\n", out.Alias, out.ID, out.Confidence, out.Source)
	case matcher.OutcomeAmbiguous:
		fmt.Printf("Ambiguous: %d identities are equally close\n", len(out.Candidates))
		for _, c := range out.Candidates {
			fmt.Printf("  %-6d %-30s distance %.4f\n", c.ID, c.Alias, c.Distance)
		}
	default:
		if out.Distance != nil {
			fmt.Printf("No match (nearest distance %.4f)\n", *out.Distance)
		} else {
			fmt.Printf("No match\n")
		}
	}
	printAuditWarning(res.AuditErr)
	return nil
}

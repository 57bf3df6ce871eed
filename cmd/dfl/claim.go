package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dealflowhq/dealflow/internal/claims"
	"github.com/dealflowhq/dealflow/internal/types"
)

var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Submit and verify extracted claims",
}

var claimSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit an extracted claim for a deal field",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dealID, _ := cmd.Flags().GetString("deal")
		field, _ := cmd.Flags().GetString("field")
		value, _ := cmd.Flags().GetString("value")
		display, _ := cmd.Flags().GetString("display")
		docID, _ := cmd.Flags().GetString("document")
		page, _ := cmd.Flags().GetInt("page")
		snippet, _ := cmd.Flags().GetString("snippet")
		confidence, _ := cmd.Flags().GetFloat64("confidence")

		claim, err := newResolver().SubmitClaim(cmd.Context(), claims.SubmitClaimInput{
			DealID:           dealID,
			Field:            field,
			Value:            value,
			DisplayValue:     display,
			SourceDocumentID: docID,
			SourcePage:       page,
			SourceSnippet:    snippet,
			ExtractionMethod: "manual",
			Confidence:       confidence,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(claim)
			return nil
		}
		fmt.Printf("Submitted claim %s (%s = %s)\n", claim.ID, claim.Field, claim.Value)
		if claim.ConflictGroupID != nil {
			fmt.Printf("Conflict opened: %s\n", *claim.ConflictGroupID)
		}
		return nil
	},
}

var claimListCmd = &cobra.Command{
	Use:   "list <deal-id> [field]",
	Short: "List claims for a deal, optionally one field",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		field := ""
		if len(args) == 2 {
			field = args[1]
		}
		list, err := newResolver().ListClaims(cmd.Context(), args[0], field)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(list)
			return nil
		}
		for _, c := range list {
			marker := ""
			if c.ConflictGroupID != nil {
				marker = "  [conflict " + *c.ConflictGroupID + "]"
			}
			fmt.Printf("%-12s  %-20s  %-18s  %s%s\n", c.ID, c.Field, c.VerificationStatus, c.EffectiveValue(), marker)
		}
		return nil
	},
}

var claimVerifyCmd = &cobra.Command{
	Use:   "verify <claim-id>",
	Short: "Confirm or reject a claim",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reject, _ := cmd.Flags().GetBool("reject")
		reason, _ := cmd.Flags().GetString("reason")
		corrected, _ := cmd.Flags().GetString("corrected-value")

		action := claims.ActionConfirm
		in := claims.VerifyInput{RejectionReason: reason}
		if reject {
			action = claims.ActionReject
		}
		if corrected != "" {
			in.CorrectedValue = &corrected
		}

		claim, err := newResolver().VerifyClaim(cmd.Context(), args[0], action, actor, in)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(claim)
			return nil
		}
		fmt.Printf("Claim %s is now %s\n", claim.ID, claim.VerificationStatus)
		return nil
	},
}

var claimValueCmd = &cobra.Command{
	Use:   "value <deal-id> <field>",
	Short: "Show the authoritative value for a field",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := newResolver().AuthoritativeValue(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if value == nil {
			fmt.Printf("No authoritative value for %s\n", args[1])
			return nil
		}
		fmt.Println(*value)
		return nil
	},
}

var conflictCmd = &cobra.Command{
	Use:   "conflict",
	Short: "Inspect and resolve claim conflicts",
}

var conflictListCmd = &cobra.Command{
	Use:   "list <deal-id>",
	Short: "List open conflicts for a deal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		status := types.ConflictOpen
		if all {
			status = ""
		}
		list, err := newResolver().ListConflicts(cmd.Context(), args[0], status)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(list)
			return nil
		}
		for _, c := range list {
			fmt.Printf("%-12s  %-20s  %-10s  %d claims\n", c.ID, c.Field, c.Status, len(c.Claims))
		}
		return nil
	},
}

var conflictShowCmd = &cobra.Command{
	Use:   "show <conflict-id>",
	Short: "Show a conflict and its grouped claims",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conflict, err := newResolver().GetConflict(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(conflict)
			return nil
		}
		fmt.Printf("%s  field=%s  status=%s  variance=%.2f%%\n",
			conflict.ID, conflict.Field, conflict.Status, conflict.Variance*100)
		for i, c := range conflict.Claims {
			fmt.Printf("  [%c] %s  %s  (%s, confidence %.2f)\n",
				'A'+rune(i), c.ID, c.EffectiveValue(), c.VerificationStatus, c.Confidence)
		}
		return nil
	},
}

var conflictResolveCmd = &cobra.Command{
	Use:   "resolve <conflict-id>",
	Short: "Resolve a conflict by choosing, overriding, or averaging",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		choose, _ := cmd.Flags().GetString("choose")
		override, _ := cmd.Flags().GetString("override")
		average, _ := cmd.Flags().GetBool("average")

		var resolution types.Resolution
		switch {
		case choose != "" && override == "" && !average:
			resolution = types.ChooseClaim(choose)
		case override != "" && choose == "" && !average:
			resolution = types.Override(override)
		case average && choose == "" && override == "":
			resolution = types.Average()
		default:
			return fmt.Errorf("%w: exactly one of --choose, --override, --average is required", types.ErrValidation)
		}

		conflict, err := newResolver().ResolveConflict(cmd.Context(), args[0], resolution, actor)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(conflict)
			return nil
		}
		fmt.Printf("Conflict %s resolved via %s: %s\n", conflict.ID, conflict.ResolutionMethod, strOrDash(conflict.ResolvedValue))
		return nil
	},
}

func init() {
	claimSubmitCmd.Flags().String("deal", "", "Deal id (required)")
	claimSubmitCmd.Flags().String("field", "", "Field name, e.g. asking_price (required)")
	claimSubmitCmd.Flags().String("value", "", "Extracted value (required)")
	claimSubmitCmd.Flags().String("display", "", "Human-readable rendering of the value")
	claimSubmitCmd.Flags().String("document", "", "Source document id")
	claimSubmitCmd.Flags().Int("page", 0, "Source page number")
	claimSubmitCmd.Flags().String("snippet", "", "Source text snippet")
	claimSubmitCmd.Flags().Float64("confidence", 1.0, "Extraction confidence 0..1")
	_ = claimSubmitCmd.MarkFlagRequired("deal")
	_ = claimSubmitCmd.MarkFlagRequired("field")
	_ = claimSubmitCmd.MarkFlagRequired("value")

	claimVerifyCmd.Flags().Bool("reject", false, "Reject instead of confirm")
	claimVerifyCmd.Flags().String("reason", "", "Rejection reason (required with --reject)")
	claimVerifyCmd.Flags().String("corrected-value", "", "Confirm with a corrected value")

	conflictListCmd.Flags().Bool("all", false, "Include resolved conflicts")

	conflictResolveCmd.Flags().String("choose", "", "Resolve by choosing this claim id")
	conflictResolveCmd.Flags().String("override", "", "Resolve with a manual value")
	conflictResolveCmd.Flags().Bool("average", false, "Resolve by averaging numeric claims")

	claimCmd.AddCommand(claimSubmitCmd, claimListCmd, claimVerifyCmd, claimValueCmd)
	conflictCmd.AddCommand(conflictListCmd, conflictShowCmd, conflictResolveCmd)
	rootCmd.AddCommand(claimCmd, conflictCmd)
}

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dealflowhq/dealflow/internal/distribution"
	"github.com/dealflowhq/dealflow/internal/types"
)

var distributeCmd = &cobra.Command{
	Use:   "distribute",
	Short: "Create and run OM distributions",
}

var distributeCreateCmd = &cobra.Command{
	Use:   "create <deal-id>",
	Short: "Create a pending distribution to a set of buyers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		omVersionID, _ := cmd.Flags().GetString("om-version")
		listingType, _ := cmd.Flags().GetString("listing")
		buyers, _ := cmd.Flags().GetStringSlice("buyers")
		anonymous, _ := cmd.Flags().GetBool("anonymous")
		label, _ := cmd.Flags().GetString("anonymous-label")

		recipients := make([]distribution.RecipientInput, 0, len(buyers))
		for _, b := range buyers {
			recipients = append(recipients, distribution.RecipientInput{
				BuyerID:   strings.TrimSpace(b),
				MatchType: types.MatchManual,
			})
		}

		dist, err := newDistributionService().CreateDistribution(cmd.Context(), distribution.CreateDistributionInput{
			DealID:            args[0],
			OMVersionID:       omVersionID,
			ListingType:       types.ListingType(strings.ToUpper(listingType)),
			IsAnonymousSeller: anonymous,
			AnonymousLabel:    label,
			CreatedBy:         actor,
			Recipients:        recipients,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(dist)
			return nil
		}
		fmt.Printf("Created distribution %s (%d recipients, %s)\n", dist.ID, len(dist.Recipients), dist.Status)
		for _, r := range dist.Recipients {
			fmt.Printf("  recipient %s -> buyer %s\n", r.ID, r.BuyerID)
		}
		return nil
	},
}

var distributeActivateCmd = &cobra.Command{
	Use:   "activate <distribution-id>",
	Short: "Push a pending distribution live",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newDistributionService().Activate(cmd.Context(), args[0], actor); err != nil {
			return err
		}
		fmt.Printf("Distribution %s is live\n", args[0])
		return nil
	},
}

var distributePauseCmd = &cobra.Command{
	Use:   "pause <distribution-id>",
	Short: "Pause an active distribution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newDistributionService().Pause(cmd.Context(), args[0], actor)
	},
}

var distributeResumeCmd = &cobra.Command{
	Use:   "resume <distribution-id>",
	Short: "Resume a paused distribution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newDistributionService().Resume(cmd.Context(), args[0], actor)
	},
}

var distributeCloseCmd = &cobra.Command{
	Use:   "close <distribution-id>",
	Short: "Close a distribution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newDistributionService().Close(cmd.Context(), args[0], actor)
	},
}

var distributeShowCmd = &cobra.Command{
	Use:   "show <distribution-id>",
	Short: "Show a distribution with recipients and responses",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dist, err := store.GetDistribution(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(dist)
			return nil
		}
		fmt.Printf("%s  deal=%s  om=%s  %s  %s\n", dist.ID, dist.DealID, dist.OMVersionID, dist.ListingType, dist.Status)
		for _, r := range dist.Recipients {
			response := "no response"
			if r.Response != nil {
				response = string(r.Response.Response)
			}
			fmt.Printf("  %s  buyer=%s  %s\n", r.ID, r.BuyerID, response)
		}
		return nil
	},
}

func init() {
	distributeCreateCmd.Flags().String("om-version", "", "Seller-approved OM version id (required)")
	distributeCreateCmd.Flags().String("listing", "private", "Listing type: public or private")
	distributeCreateCmd.Flags().StringSlice("buyers", nil, "Comma-separated buyer ids (required)")
	distributeCreateCmd.Flags().Bool("anonymous", false, "Hide the seller identity from buyers")
	distributeCreateCmd.Flags().String("anonymous-label", "", "Label shown in place of the seller")
	_ = distributeCreateCmd.MarkFlagRequired("om-version")
	_ = distributeCreateCmd.MarkFlagRequired("buyers")

	distributeCmd.AddCommand(distributeCreateCmd, distributeActivateCmd, distributePauseCmd,
		distributeResumeCmd, distributeCloseCmd, distributeShowCmd)
	rootCmd.AddCommand(distributeCmd)
}

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dealflowhq/dealflow/internal/distribution"
	"github.com/dealflowhq/dealflow/internal/types"
)

var respondCmd = &cobra.Command{
	Use:   "respond <recipient-id>",
	Short: "Record a buyer's response to a distribution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		supersede, _ := cmd.Flags().GetBool("supersede")
		in, err := responseFromFlags(cmd)
		if err != nil {
			return err
		}

		svc := newDistributionService()
		if supersede {
			resp, err := svc.SupersedeResponse(cmd.Context(), args[0], in)
			if err != nil {
				return err
			}
			fmt.Printf("Recorded revised response %s (%s)\n", resp.ID, resp.Response)
			return nil
		}

		resp, _, err := svc.RecordBuyerResponse(cmd.Context(), args[0], in)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(resp)
			return nil
		}
		fmt.Printf("Recorded response %s (%s)\n", resp.ID, resp.Response)
		return nil
	},
}

func responseFromFlags(cmd *cobra.Command) (distribution.ResponseInput, error) {
	kind, _ := cmd.Flags().GetString("response")
	conditions, _ := cmd.Flags().GetString("conditions")
	questions, _ := cmd.Flags().GetString("questions")
	passReason, _ := cmd.Flags().GetString("pass-reason")
	notes, _ := cmd.Flags().GetString("notes")
	confidential, _ := cmd.Flags().GetBool("confidential")

	in := distribution.ResponseInput{
		Response:     types.ResponseKind(strings.ToUpper(kind)),
		Conditions:   conditions,
		Questions:    questions,
		PassReason:   passReason,
		Notes:        notes,
		Confidential: confidential,
	}
	if cmd.Flags().Changed("price-min") {
		v, _ := cmd.Flags().GetFloat64("price-min")
		in.PriceMin = &v
	}
	if cmd.Flags().Changed("price-max") {
		v, _ := cmd.Flags().GetFloat64("price-max")
		in.PriceMax = &v
	}
	return in, nil
}

var viewCmd = &cobra.Command{
	Use:   "view <recipient-id>",
	Short: "Record a buyer's OM view engagement",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		duration, _ := cmd.Flags().GetInt("duration")
		pages, _ := cmd.Flags().GetInt("pages")
		return newDistributionService().RecordView(cmd.Context(), args[0], duration, pages)
	},
}

func init() {
	respondCmd.Flags().String("response", "", "INTERESTED, INTERESTED_WITH_CONDITIONS, or PASS (required)")
	respondCmd.Flags().Float64("price-min", 0, "Indicative price floor")
	respondCmd.Flags().Float64("price-max", 0, "Indicative price ceiling")
	respondCmd.Flags().String("conditions", "", "Conditions attached to the interest")
	respondCmd.Flags().String("questions", "", "Buyer questions")
	respondCmd.Flags().String("pass-reason", "", "Reason (required with PASS)")
	respondCmd.Flags().String("notes", "", "Free-form notes")
	respondCmd.Flags().Bool("confidential", false, "Keep the response hidden from the seller")
	respondCmd.Flags().Bool("supersede", false, "Replace the recipient's live response")
	_ = respondCmd.MarkFlagRequired("response")

	viewCmd.Flags().Int("duration", 0, "View duration in seconds")
	viewCmd.Flags().Int("pages", 0, "Pages viewed")

	rootCmd.AddCommand(respondCmd, viewCmd)
}

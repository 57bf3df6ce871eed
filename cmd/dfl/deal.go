package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dealflowhq/dealflow/internal/idgen"
	"github.com/dealflowhq/dealflow/internal/types"
)

var dealCmd = &cobra.Command{
	Use:   "deal",
	Short: "Manage deal drafts",
}

var dealCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a deal draft",
	RunE: func(cmd *cobra.Command, _ []string) error {
		title, _ := cmd.Flags().GetString("title")
		address, _ := cmd.Flags().GetString("address")
		propertyType, _ := cmd.Flags().GetString("property-type")
		sellerID, _ := cmd.Flags().GetString("seller")
		requiresOM, _ := cmd.Flags().GetBool("seller-approves-om")
		requiresBuyer, _ := cmd.Flags().GetBool("seller-approves-buyers")

		deal := &types.DealDraft{
			ID:                          idgen.New(idgen.PrefixDeal, time.Now().UTC(), 0, title, sellerID),
			Title:                       title,
			Address:                     address,
			PropertyType:                propertyType,
			SellerID:                    sellerID,
			SellerRequiresOMApproval:    requiresOM,
			SellerRequiresBuyerApproval: requiresBuyer,
		}
		if err := store.CreateDeal(cmd.Context(), deal, actor); err != nil {
			return err
		}
		// The creator starts with every capability on their own deal.
		err := store.AddDealBroker(cmd.Context(), &types.DealBroker{
			DealID: deal.ID, BrokerID: actor, IsPrimary: true,
			CanApproveOM: true, CanDistribute: true, CanAuthorize: true,
		})
		if err != nil {
			return err
		}

		if jsonOutput {
			outputJSON(deal)
		} else {
			fmt.Printf("Created deal %s (%s)\n", deal.ID, deal.Title)
		}
		return nil
	},
}

var dealListCmd = &cobra.Command{
	Use:   "list",
	Short: "List deals",
	RunE: func(cmd *cobra.Command, _ []string) error {
		deals, err := store.ListDeals(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(deals)
			return nil
		}
		for _, d := range deals {
			fmt.Printf("%-30s  %-28s  %s\n", d.ID, d.Status, d.Title)
		}
		return nil
	},
}

var dealShowCmd = &cobra.Command{
	Use:   "show <deal-id>",
	Short: "Show a deal with its broker team",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deal, err := store.GetDeal(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(deal)
			return nil
		}
		fmt.Printf("%s  %s\n", deal.ID, deal.Title)
		fmt.Printf("  status: %s\n", deal.Status)
		if deal.Address != "" {
			fmt.Printf("  address: %s\n", deal.Address)
		}
		fmt.Printf("  seller: %s (OM approval: %v, buyer approval: %v)\n",
			deal.SellerID, deal.SellerRequiresOMApproval, deal.SellerRequiresBuyerApproval)
		for _, b := range deal.Brokers {
			fmt.Printf("  broker %s: primary=%v om=%v dist=%v auth=%v\n",
				b.BrokerID, b.IsPrimary, b.CanApproveOM, b.CanDistribute, b.CanAuthorize)
		}
		return nil
	},
}

var dealAddBrokerCmd = &cobra.Command{
	Use:   "add-broker <deal-id> <broker-id>",
	Short: "Attach a broker to a deal",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		canApprove, _ := cmd.Flags().GetBool("can-approve-om")
		canDistribute, _ := cmd.Flags().GetBool("can-distribute")
		canAuthorize, _ := cmd.Flags().GetBool("can-authorize")
		primary, _ := cmd.Flags().GetBool("primary")

		err := store.AddDealBroker(cmd.Context(), &types.DealBroker{
			DealID: args[0], BrokerID: args[1], IsPrimary: primary,
			CanApproveOM: canApprove, CanDistribute: canDistribute, CanAuthorize: canAuthorize,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Added broker %s to %s\n", args[1], args[0])
		return nil
	},
}

var dealAdvanceCmd = &cobra.Command{
	Use:   "advance-dd <deal-id>",
	Short: "Promote a distributed deal to active due diligence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newDistributionService().AdvanceToDD(cmd.Context(), args[0], actor); err != nil {
			return err
		}
		fmt.Printf("Deal %s advanced to %s\n", args[0], types.DealActiveDD)
		return nil
	},
}

var dealEventsCmd = &cobra.Command{
	Use:   "events <entity-id>",
	Short: "Show the audit trail for a deal or any entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		events, err := store.GetEvents(cmd.Context(), args[0], limit)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(events)
			return nil
		}
		for _, e := range events {
			line := fmt.Sprintf("%s  %-28s", e.CreatedAt.Format(time.RFC3339), e.EventType)
			if e.Actor != "" {
				line += "  by " + e.Actor
			}
			if e.OldValue != nil || e.NewValue != nil {
				line += fmt.Sprintf("  %s -> %s", strOrDash(e.OldValue), strOrDash(e.NewValue))
			}
			if e.Comment != nil {
				line += "  (" + *e.Comment + ")"
			}
			fmt.Println(line)
		}
		return nil
	},
}

func strOrDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func init() {
	dealCreateCmd.Flags().String("title", "", "Deal title (required)")
	dealCreateCmd.Flags().String("address", "", "Property address")
	dealCreateCmd.Flags().String("property-type", "", "Property type (office, industrial, retail, ...)")
	dealCreateCmd.Flags().String("seller", "", "Seller id (required)")
	dealCreateCmd.Flags().Bool("seller-approves-om", false, "Seller must approve the OM before marketing")
	dealCreateCmd.Flags().Bool("seller-approves-buyers", false, "Seller must confirm buyer authorizations")
	_ = dealCreateCmd.MarkFlagRequired("title")
	_ = dealCreateCmd.MarkFlagRequired("seller")

	dealAddBrokerCmd.Flags().Bool("can-approve-om", false, "Broker may approve OM versions")
	dealAddBrokerCmd.Flags().Bool("can-distribute", false, "Broker may create and run distributions")
	dealAddBrokerCmd.Flags().Bool("can-authorize", false, "Broker may authorize buyers")
	dealAddBrokerCmd.Flags().Bool("primary", false, "Mark as the primary broker")

	dealEventsCmd.Flags().Int("limit", 50, "Maximum events to show")

	dealCmd.AddCommand(dealCreateCmd, dealListCmd, dealShowCmd, dealAddBrokerCmd, dealAdvanceCmd, dealEventsCmd)
	rootCmd.AddCommand(dealCmd)
}

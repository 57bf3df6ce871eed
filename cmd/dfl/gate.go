package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dealflowhq/dealflow/internal/types"
)

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Work the buyer gate: authorization, NDA, data room",
}

var gateStateCmd = &cobra.Command{
	Use:   "state <recipient-id>",
	Short: "Show a recipient's position at the gate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := newDistributionService().GateState(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		auth, reviewed := state.Authorization()
		if !reviewed {
			fmt.Println("unreviewed: responded, awaiting broker action")
			return nil
		}
		if jsonOutput {
			outputJSON(auth)
			return nil
		}
		fmt.Printf("%s  nda=%s  data room=%v\n", auth.Status, auth.NDAStatus, auth.DataRoomAccessGranted)
		return nil
	},
}

var gateAuthorizeCmd = &cobra.Command{
	Use:   "authorize <recipient-id>",
	Short: "Authorize a responding buyer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, _ := cmd.Flags().GetString("level")
		auth, err := newDistributionService().AuthorizeBuyer(cmd.Context(), args[0], actor, types.AccessLevel(strings.ToUpper(level)))
		if err != nil {
			return err
		}
		fmt.Printf("Buyer authorization %s: %s (%s access)\n", auth.ID, auth.Status, auth.AccessLevel)
		return nil
	},
}

var gateDeclineCmd = &cobra.Command{
	Use:   "decline <recipient-id>",
	Short: "Decline a responding buyer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		auth, err := newDistributionService().DeclineBuyer(cmd.Context(), args[0], actor, reason)
		if err != nil {
			return err
		}
		fmt.Printf("Buyer declined (%s)\n", auth.Status)
		return nil
	},
}

var gateRevokeCmd = &cobra.Command{
	Use:   "revoke <recipient-id>",
	Short: "Revoke an authorized buyer's access",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		auth, err := newDistributionService().RevokeBuyer(cmd.Context(), args[0], actor, reason)
		if err != nil {
			return err
		}
		fmt.Printf("Authorization revoked (%s)\n", auth.Status)
		return nil
	},
}

var gateSellerConfirmCmd = &cobra.Command{
	Use:   "seller-confirm <recipient-id>",
	Short: "Seller confirms a pending authorization",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		auth, err := newDistributionService().SellerConfirmAuthorization(cmd.Context(), args[0], actor)
		if err != nil {
			return err
		}
		fmt.Printf("Seller confirmed; buyer is %s\n", auth.Status)
		return nil
	},
}

var gateSellerDeclineCmd = &cobra.Command{
	Use:   "seller-decline <recipient-id>",
	Short: "Seller declines a pending authorization",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		auth, err := newDistributionService().SellerDeclineAuthorization(cmd.Context(), args[0], actor, reason)
		if err != nil {
			return err
		}
		fmt.Printf("Seller declined (%s)\n", auth.Status)
		return nil
	},
}

var gateNDACmd = &cobra.Command{
	Use:   "nda <sent|signed|expired> <recipient-id>",
	Short: "Record an NDA callback from the document service",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := newDistributionService()
		var (
			auth *types.BuyerAuthorization
			err  error
		)
		switch args[0] {
		case "sent":
			auth, err = svc.MarkNDASent(cmd.Context(), args[1])
		case "signed":
			auth, err = svc.MarkNDASigned(cmd.Context(), args[1])
		case "expired":
			auth, err = svc.MarkNDAExpired(cmd.Context(), args[1])
		default:
			return fmt.Errorf("%w: unknown NDA event %q", types.ErrValidation, args[0])
		}
		if err != nil {
			return err
		}
		fmt.Printf("NDA %s; data room=%v\n", auth.NDAStatus, auth.DataRoomAccessGranted)
		return nil
	},
}

var gateProgressCmd = &cobra.Command{
	Use:   "progress <deal-id>",
	Short: "Show the buyer-gate funnel for a deal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		progress, err := newDistributionService().Progress(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(progress)
			return nil
		}
		fmt.Printf("distributed %d -> responded %d -> interested %d -> authorized %d -> NDA signed %d -> data room %d\n",
			progress.Distributed, progress.Responded, progress.Interested,
			progress.Authorized, progress.NDASigned, progress.InDataRoom)
		if progress.CanAdvanceToDD {
			fmt.Println("deal can advance to due diligence")
		}
		return nil
	},
}

func init() {
	gateAuthorizeCmd.Flags().String("level", "standard", "Access level: standard, full, or custom")
	gateDeclineCmd.Flags().String("reason", "", "Decline reason (required)")
	_ = gateDeclineCmd.MarkFlagRequired("reason")
	gateRevokeCmd.Flags().String("reason", "", "Revoke reason (required)")
	_ = gateRevokeCmd.MarkFlagRequired("reason")
	gateSellerDeclineCmd.Flags().String("reason", "", "Decline reason (required)")
	_ = gateSellerDeclineCmd.MarkFlagRequired("reason")

	gateCmd.AddCommand(gateStateCmd, gateAuthorizeCmd, gateDeclineCmd, gateRevokeCmd,
		gateSellerConfirmCmd, gateSellerDeclineCmd, gateNDACmd, gateProgressCmd)
	rootCmd.AddCommand(gateCmd)
}

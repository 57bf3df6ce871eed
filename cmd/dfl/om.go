package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var omCmd = &cobra.Command{
	Use:   "om",
	Short: "Generate and approve offering memorandum versions",
}

var omGenerateCmd = &cobra.Command{
	Use:   "generate <deal-id>",
	Short: "Generate an OM draft from the deal's authoritative facts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		regenerate, _ := cmd.Flags().GetBool("regenerate")

		version, err := newOMService().GenerateDraft(cmd.Context(), args[0], actor, regenerate)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(version)
			return nil
		}
		fmt.Printf("OM version %s (v%d, %s) with %d sections\n",
			version.ID, version.VersionNumber, version.Status, len(version.Sections))
		return nil
	},
}

var omShowCmd = &cobra.Command{
	Use:   "show <deal-id>",
	Short: "Show the latest OM version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := newOMService().Latest(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(version)
			return nil
		}
		fmt.Printf("%s  v%d  %s\n", version.ID, version.VersionNumber, version.Status)
		keys := make([]string, 0, len(version.Sections))
		for k := range version.Sections {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			s := version.Sections[k]
			origin := "edited"
			if s.Autogenerated {
				origin = "generated"
			}
			fmt.Printf("\n== %s (%s)\n%s\n", k, origin, s.Content)
		}
		return nil
	},
}

var omListCmd = &cobra.Command{
	Use:   "list <deal-id>",
	Short: "List OM versions for a deal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		versions, err := newOMService().List(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(versions)
			return nil
		}
		for _, v := range versions {
			fmt.Printf("%-12s  v%-3d  %-18s  by %s\n", v.ID, v.VersionNumber, v.Status, v.CreatedBy)
		}
		return nil
	},
}

var omEditCmd = &cobra.Command{
	Use:   "edit <version-id> <section>",
	Short: "Replace a section's content on a draft",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, _ := cmd.Flags().GetString("content")
		version, err := newOMService().UpdateSection(cmd.Context(), args[0], args[1], content, actor)
		if err != nil {
			return err
		}
		fmt.Printf("Updated %s on %s\n", args[1], version.ID)
		return nil
	},
}

var omApproveCmd = &cobra.Command{
	Use:   "approve <version-id>",
	Short: "Broker-approve a draft",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := newOMService().BrokerApprove(cmd.Context(), args[0], actor)
		if err != nil {
			return err
		}
		fmt.Printf("OM %s is now %s\n", version.ID, version.Status)
		return nil
	},
}

var omSellerApproveCmd = &cobra.Command{
	Use:   "seller-approve <version-id>",
	Short: "Record the seller's approval",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := newOMService().SellerApprove(cmd.Context(), args[0], actor)
		if err != nil {
			return err
		}
		fmt.Printf("OM %s is now %s\n", version.ID, version.Status)
		return nil
	},
}

var omRequestChangesCmd = &cobra.Command{
	Use:   "request-changes <version-id>",
	Short: "Send an approved version back to draft",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		note, _ := cmd.Flags().GetString("note")
		version, err := newOMService().RequestChanges(cmd.Context(), args[0], actor, note)
		if err != nil {
			return err
		}
		fmt.Printf("OM %s returned to %s\n", version.ID, version.Status)
		return nil
	},
}

var omLogCmd = &cobra.Command{
	Use:   "log <version-id>",
	Short: "Show the change log for an OM version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		events, err := newOMService().ChangeLog(cmd.Context(), args[0], limit)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(events)
			return nil
		}
		for _, e := range events {
			line := fmt.Sprintf("%s  %-24s  %s", e.CreatedAt.Format("2006-01-02 15:04:05"), e.EventType, e.Actor)
			if e.Comment != nil {
				line += "  (" + *e.Comment + ")"
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	omGenerateCmd.Flags().Bool("regenerate", false, "Allow a new version after the current one is approved")
	omEditCmd.Flags().String("content", "", "New section content (required)")
	_ = omEditCmd.MarkFlagRequired("content")
	omRequestChangesCmd.Flags().String("note", "", "Change request note (required)")
	_ = omRequestChangesCmd.MarkFlagRequired("note")
	omLogCmd.Flags().Int("limit", 50, "Maximum entries to show")

	omCmd.AddCommand(omGenerateCmd, omShowCmd, omListCmd, omEditCmd,
		omApproveCmd, omSellerApproveCmd, omRequestChangesCmd, omLogCmd)
	rootCmd.AddCommand(omCmd)
}

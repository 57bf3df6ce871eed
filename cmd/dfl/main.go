// dfl is the command-line interface to the deal workflow: claims and
// conflicts, offering-memorandum versions, distributions and the buyer gate,
// and the escalation sweep.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dealflowhq/dealflow/internal/claims"
	"github.com/dealflowhq/dealflow/internal/config"
	"github.com/dealflowhq/dealflow/internal/distribution"
	"github.com/dealflowhq/dealflow/internal/generate"
	"github.com/dealflowhq/dealflow/internal/notification"
	"github.com/dealflowhq/dealflow/internal/om"
	"github.com/dealflowhq/dealflow/internal/storage"
	"github.com/dealflowhq/dealflow/internal/storage/sqlite"
	"github.com/dealflowhq/dealflow/internal/telemetry"
)

// Version is stamped at build time.
var Version = "dev"

var (
	rootCtx    context.Context
	cancelRoot context.CancelFunc

	store      storage.Storage
	dbPath     string
	actor      string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:           "dfl",
	Short:         "dfl - Commercial real estate deal workflow",
	Long:          `Track extracted claims through conflict resolution, offering memorandum drafting and approval, buyer distribution and gating, and overdue-item escalation.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := config.Initialize(); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if dbPath == "" {
			dbPath = config.GetString(config.KeyDBPath)
		}
		if actor == "" {
			actor = config.GetString(config.KeyActor)
		}
		if actor == "" {
			actor = os.Getenv("USER")
		}
		if !jsonOutput {
			jsonOutput = config.GetBool(config.KeyJSON)
		}

		if err := telemetry.Init(rootCtx, "dfl", Version); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: telemetry init failed: %v\n", err)
		}

		if !needsStore(cmd) {
			return nil
		}
		s, err := sqlite.New(rootCtx, dbPath)
		if err != nil {
			return fmt.Errorf("open database %s: %w", dbPath, err)
		}
		store = telemetry.WrapStorage(s)
		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		if store != nil {
			_ = store.Close()
		}
		telemetry.Shutdown(rootCtx)
	},
}

// needsStore reports whether the command operates on the database. Help and
// completion must work outside a workspace.
func needsStore(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "help", "completion", "version":
		return false
	}
	return true
}

func newResolver() *claims.Resolver {
	return claims.NewResolver(store)
}

func newNotifier() notification.Notifier {
	sinks := []notification.Sink{notification.LogSink{}}
	if url := config.GetString(config.KeyWebhookURL); url != "" {
		sinks = append(sinks, notification.NewWebhookSink(url))
	}
	return notification.NewDispatcher(sinks...)
}

// newGenerator prefers the Anthropic generator when an API key is available
// and falls back to deterministic templates otherwise.
func newGenerator() generate.Generator {
	apiKey := config.GetString(config.KeyAIAPIKey)
	model := config.GetString(config.KeyAIModel)
	gen, err := generate.NewAnthropicGenerator(apiKey, model)
	if err != nil {
		return generate.NewTemplateGenerator()
	}
	return gen
}

func newOMService() *om.Service {
	return om.NewService(store, newResolver(), newGenerator(), newNotifier())
}

func newDistributionService() *distribution.Service {
	return distribution.NewService(store, newNotifier())
}

func outputJSON(v any) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("dfl version %s\n", Version)
	},
}

func main() {
	rootCtx, cancelRoot = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancelRoot()

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: config db.path or dealflow.db)")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "", "Actor name for the audit trail (default: config actor or $USER)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.ExecuteContext(rootCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

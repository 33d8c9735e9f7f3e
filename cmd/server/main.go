package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// main wires the cobra command tree: `serve` runs the market-data backend,
// `mock-scenario` is a debug subcommand that drives the mock provider's
// control surface from the CLI without standing up the REST/push surfaces.
func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "marketdata-backend",
		Short: "Market-data ingestion and analytics backend",
	}

	root.PersistentFlags().String("port", "", "HTTP port to listen on (overrides PORT)")
	root.PersistentFlags().String("provider", "", "default provider name (overrides DEFAULT_PROVIDER)")
	root.PersistentFlags().String("log-level", "", "log level (overrides LOG_LEVEL)")
	_ = viper.BindPFlag("port", root.PersistentFlags().Lookup("port"))
	_ = viper.BindPFlag("provider", root.PersistentFlags().Lookup("provider"))
	_ = viper.BindPFlag("log-level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(newServeCommand())
	root.AddCommand(newMockScenarioCommand())
	return root
}

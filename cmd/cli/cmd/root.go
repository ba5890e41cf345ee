package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// NewRootCmd builds the simctl command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "simctl",
		Short: "simctl is a command line tool for driving simplane simulations",
		Long: `simctl is the command-line interface for the simplane simulation orchestrator.

A simulation session is created against a system design, then driven through its
lifecycle (created -> running <-> paused -> completed). While it runs, the simulation
runtime records events and metrics, and faults can be scheduled against components.

Common workflows:

  Create a session for a design:
    simctl create --design <design-id> --name "peak traffic" --config '{"rps":500}'

  Drive it:
    simctl start <session-id>
    simctl pause <session-id>
    simctl stop <session-id> --results '{"p99_ms":120}'

  Inject a fault 30 seconds into the run:
    simctl fault schedule <session-id> --type latency --target db --start 30 --duration 10

  Follow it live:
    simctl watch <session-id>

Configuration:
  Set the API endpoint and credentials via flags, environment variables or a config file:
    SIMPLANE_URL      API endpoint (default: http://localhost:8004)
    SIMPLANE_TOKEN    Bearer token issued by the user service
    SIMPLANE_OUTPUT   table, json or yaml`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.simctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:8004", "simplane orchestrator URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("token", "t", "", "Bearer token for authentication")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))

	rootCmd.PersistentFlags().StringP("output", "o", "table", "Output format: table, json or yaml")
	viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))

	rootCmd.AddCommand(
		newCreateCmd(),
		newListCmd(),
		newGetCmd(),
		newUpdateCmd(),
		newDeleteCmd(),
		newTransitionCmd("start", "Start or restart a session"),
		newTransitionCmd("pause", "Pause a running session"),
		newTransitionCmd("resume", "Resume a paused session"),
		newStopCmd(),
		newEventsCmd(),
		newMetricsCmd(),
		newFaultCmd(),
		newWatchCmd(),
	)
	return rootCmd
}

func Execute() error {
	cobra.OnInitialize(initConfig)
	return NewRootCmd().Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".simctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".simctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "SIMPLANE_VARNAME"
	viper.SetEnvPrefix("SIMPLANE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newClient builds an API client from the resolved configuration. It reports
// false after telling the user when no token is configured.
func newClient(cmd *cobra.Command) (*SimClient, bool) {
	token := viper.GetString("token")
	if token == "" {
		cmd.Println("API token not found. Please set it using the --token flag or the SIMPLANE_TOKEN environment variable")
		return nil, false
	}
	return NewSimClient(viper.GetString("url"), token), true
}

func printError(cmd *cobra.Command, err error) {
	if apiErr, ok := err.(*APIError); ok {
		cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
		return
	}
	cmd.Printf("Error: %v\n", err)
}

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/cuemby/topio-agent/pkg/log"
	"github.com/cuemby/topio-agent/pkg/metrics"
	"github.com/cuemby/topio-agent/pkg/security"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "topio-agent",
	Short: "Unattended upgrade and reward agent for topio nodes",
	Long: `topio-agent keeps one or more local topio installations on the latest
release, rolling back when a new release fails to join the network, and
periodically claims mining rewards and sweeps surplus balances to a
target account.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log.Init(log.Config{
			Level:      log.ParseLevel(viper.GetString("log-level")),
			JSONOutput: viper.GetBool("log-json"),
		})
		metrics.SetVersion(Version)
		return nil
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"topio-agent version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := rootCmd.PersistentFlags()
	flags.String("config", "/etc/topio-agent/config.yaml", "Agent configuration file")
	flags.String("data-dir", "/var/lib/topio-agent", "Directory for the agent state database")
	flags.String("machine-id-path", security.DefaultMachineIDPath, "File the password encryption key is derived from")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "Emit JSON logs instead of console output")

	cobra.OnInitialize(initViper)
	_ = viper.BindPFlags(flags)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(passwdCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

// initViper lets every flag be set from TOPIO_AGENT_* environment variables,
// including ones listed in a .env file in the working directory
func initViper() {
	_ = godotenv.Load()

	viper.SetEnvPrefix("topio_agent")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("topio-agent version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}

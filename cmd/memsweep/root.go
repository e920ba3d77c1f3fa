package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/memsweep/pkg/memsweep/config"
)

var (
	cfgFile string

	// configErr holds a failure from initConfig, reported once a command runs.
	configErr error

	rootCmd = &cobra.Command{
		Use:   "memsweep",
		Short: "Reclaim physical memory held by processes and system caches",
		Long: `Memsweep trims process working sets and flushes the memory lists and
caches the operating system keeps, returning physical memory to the free pool.

Most areas need administrator rights. Areas the running OS version cannot
reclaim are reported as unsupported rather than attempted.

Examples:
  memsweep optimize                    # Optimize the configured default areas
  memsweep optimize standby registry   # Optimize specific areas
  memsweep optimize --areas all -n     # Every area, plain progress lines
  memsweep optimize -o json            # JSON report
  memsweep status                      # Memory load and supported areas
  memsweep daemon start                # Start memsweepd for automatic runs`,
		SilenceUsage:      true,
		PersistentPreRunE: initializeLogging,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/memsweep/config.yaml)")
	rootCmd.PersistentFlags().StringP("output", "o", "", "report format: "+formatList())
	rootCmd.PersistentFlags().String("template", "", "Go template for -o template")
	rootCmd.PersistentFlags().BoolP("no-interactive", "n", false, "disable the progress view, print plain progress lines")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")

	// Bind flags to viper
	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	_ = viper.BindPFlag("template", rootCmd.PersistentFlags().Lookup("template"))
	_ = viper.BindPFlag("no_interactive", rootCmd.PersistentFlags().Lookup("no-interactive"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and environment variables.
func initConfig() {
	configErr = config.Configure(viper.GetViper(), cfgFile)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return viper.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...any) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...any) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	_ "time/tzdata"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:           "dailydeen",
	Short:         "Daily Quran verse, hadith and prayer times",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.AddCommand(serveCmd, stopCmd, statusCmd)
	rootCmd.AddCommand(todayCmd, prayerCmd, rotateCmd, resetCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

// versionString is printed on server start.
func versionString() string {
	return fmt.Sprintf("dailydeen version %s", version)
}

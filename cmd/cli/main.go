package main

import (
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/potholemap/potholemap/cmd/cli/describe"
	"github.com/potholemap/potholemap/cmd/cli/potholes"
	"github.com/potholemap/potholemap/internal/errors"
	"github.com/spf13/cobra"
)

func init() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	rootCmd.PersistentFlags().String("api-url", envOr("POTHOLEMAP_API_URL", "http://localhost:8000"),
		"base URL of the pothole backend API")
	rootCmd.PersistentFlags().String("submit-url", envOr("POTHOLEMAP_SUBMIT_URL", "http://localhost:4000"),
		"base URL of the 311 service")
	rootCmd.AddGroup(potholes.Group)
	rootCmd.AddCommand(potholes.Fetch, potholes.Analyze, potholes.Status)
	rootCmd.AddGroup(describe.Group)
	rootCmd.AddCommand(describe.Describe)
}

var rootCmd = &cobra.Command{
	Use:   "potholemap-cli",
	Short: "Command line utilities for Pothole Map",
	Long:  `Command line utilities for Pothole Map: fetch open data, run the analyzer and look up 311 reports.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}

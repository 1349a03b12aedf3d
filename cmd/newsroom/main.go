// Package main provides the newsroom CLI entry point.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

// humanOutput controls whether to use human-readable output
var humanOutput bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "newsroom",
	Short: "Plain-language briefings on new clinical research",
	Long: `newsroom curates PubMed primary research into short plain-language
news stories.

The serve command runs the public gallery and the admin curation
interface. Commands that report results output JSON by default; use
--human for readable output.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Load .env if present (PUBMED_EMAIL, OPENAI_API_KEY, ADMIN_PASSWORD, ...)
	_ = godotenv.Load()

	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.Version = Version
}

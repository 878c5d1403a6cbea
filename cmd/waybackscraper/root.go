package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"waybackscraper/pkg/config"
	"waybackscraper/pkg/logger"
	"waybackscraper/pkg/scraper"
	"waybackscraper/pkg/wayback"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// app holds the global flags shared by every command
type app struct {
	configFile string
	logLevel   string
	noColor    bool
	noProgress bool
	quiet      bool
	verbose    bool

	// newArchive builds the archive client; tests replace it
	newArchive func(cfg *config.Config, log logger.Logger) scraper.Archive
}

func newApp() *app {
	return &app{
		newArchive: func(cfg *config.Config, log logger.Logger) scraper.Archive {
			return wayback.NewClientFromConfig(cfg, log)
		},
	}
}

// newRootCmd builds the command tree. Bare arguments are treated as
// accounts and scraped.
func newRootCmd(a *app) *cobra.Command {
	scrape := &scrapeOptions{}

	rootCmd := &cobra.Command{
		Use:   "waybackscraper [account...]",
		Short: "Download the images an account posted from Wayback Machine captures",
		Long: `waybackscraper recovers images posted by Twitter/X accounts from the
Internet Archive. It lists every capture of an account's pages in the Wayback
Machine, extracts the account's own image posts from each capture and
downloads every image once.

Features:
  - Modern, legacy and JSON capture layouts
  - Fallback to the archived original when the image host fails
  - Idempotent re-runs through a per-account ledger
  - Failure logs per account for images and captures
  - Resume interrupted runs with --resume`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cfg, err := a.loadConfig(nil)
				if err != nil || len(cfg.Accounts) == 0 {
					return cmd.Help()
				}
			}
			return a.runScrape(cmd, args, scrape)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "config file (default is ./.waybackscraper.yaml)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.BoolVar(&a.noColor, "no-color", false, "disable colored output")
	flags.BoolVar(&a.noProgress, "no-progress", false, "disable the progress bar")
	flags.BoolVarP(&a.quiet, "quiet", "q", false, "suppress all output except errors")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "show debug logs instead of the progress bar")

	rootCmd.SetVersionTemplate(`waybackscraper {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	addScrapeFlags(rootCmd, scrape)
	rootCmd.AddCommand(newScrapeCmd(a))
	rootCmd.AddCommand(newConfigCmd(a))

	return rootCmd
}

// loadConfig loads configuration with the global flags and extra merged in
func (a *app) loadConfig(extra map[string]interface{}) (*config.Config, error) {
	flags := map[string]interface{}{
		"log-level":   a.logLevel,
		"no-color":    a.noColor,
		"no-progress": a.noProgress,
	}
	for k, v := range extra {
		flags[k] = v
	}
	return config.Load(a.configFile, flags)
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := newRootCmd(newApp()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

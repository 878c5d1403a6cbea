package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"waybackscraper/pkg/config"
	"waybackscraper/pkg/logger"
	"waybackscraper/pkg/metrics"
	"waybackscraper/pkg/scraper"
	"waybackscraper/pkg/ui"
)

// scrapeOptions holds the scrape command flags
type scrapeOptions struct {
	output      string
	from        string
	to          string
	timeout     time.Duration
	resume      bool
	noFallback  bool
	metricsFile string
}

func (o *scrapeOptions) flags() map[string]interface{} {
	return map[string]interface{}{
		"output":       o.output,
		"from":         o.from,
		"to":           o.to,
		"timeout":      o.timeout,
		"no-fallback":  o.noFallback,
		"metrics-file": o.metricsFile,
	}
}

func addScrapeFlags(cmd *cobra.Command, o *scrapeOptions) {
	f := cmd.Flags()
	f.StringVarP(&o.output, "output", "o", "", "base output directory (default: twitter_images)")
	f.StringVar(&o.from, "from", "", "earliest capture timestamp, 1 to 14 digits (e.g. 2019 or 20190601)")
	f.StringVar(&o.to, "to", "", "latest capture timestamp, 1 to 14 digits")
	f.DurationVar(&o.timeout, "timeout", 0, "image download timeout (default 60s)")
	f.BoolVar(&o.resume, "resume", false, "skip captures completed by an interrupted run")
	f.BoolVar(&o.noFallback, "no-fallback", false, "do not retry failed images through the archived original")
	f.StringVar(&o.metricsFile, "metrics-file", "", "write prometheus metrics to this textfile after the run")
}

func newScrapeCmd(a *app) *cobra.Command {
	o := &scrapeOptions{}
	cmd := &cobra.Command{
		Use:   "scrape [account...]",
		Short: "Download archived images of one or more accounts",
		Long: `Download every image the given accounts posted, as preserved in Wayback
Machine captures of their Twitter/X pages.

Accounts are taken from the arguments, or from the accounts list of the
configuration file when no argument is given. Each account gets its own
directory under the output directory holding the images, the downloaded
URL ledger and the failure logs. Interrupting with Ctrl-C stops before the
next request; run again with --resume to continue.`,
		Example: `  # Download all archived images of one account
  waybackscraper scrape nasa

  # Several accounts, captures from 2015 to 2018 only
  waybackscraper scrape nasa esa --from 2015 --to 2018

  # Continue an interrupted run
  waybackscraper scrape nasa --resume

  # Export run metrics for the node-exporter textfile collector
  waybackscraper scrape nasa --metrics-file /var/lib/node_exporter/waybackscraper.prom`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runScrape(cmd, args, o)
		},
	}
	addScrapeFlags(cmd, o)
	return cmd
}

func (a *app) runScrape(cmd *cobra.Command, args []string, o *scrapeOptions) error {
	cfg, err := a.loadConfig(o.flags())
	if err != nil {
		return err
	}
	if a.verbose && a.logLevel == "" {
		cfg.Logging.Level = "debug"
	}
	if a.quiet && a.logLevel == "" {
		cfg.Logging.Level = "error"
	}

	accounts, err := resolveAccounts(args, cfg)
	if err != nil {
		return err
	}

	logOpts := []logger.Option{logger.WithOutput(cmd.ErrOrStderr())}
	if !cfg.UI.Color {
		logOpts = append(logOpts, logger.WithoutColor())
	}
	if err := logger.Initialize(&cfg.Logging, logOpts...); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()
	log.WithField("version", version).Debug("waybackscraper starting")

	printer := ui.NewPrinter(cmd.OutOrStdout(), cfg.UI.Color, a.quiet)
	printer.PrintBanner()
	printer.PrintInfo("Accounts", strings.Join(accounts, ", "))
	printer.PrintInfo("Output", cfg.Output.BaseDirectory)
	if cfg.Archive.From != "" || cfg.Archive.To != "" {
		printer.PrintInfo("Window", fmt.Sprintf("%s..%s", cfg.Archive.From, cfg.Archive.To))
	}

	var m *metrics.Metrics
	if cfg.Metrics.Textfile != "" {
		m = metrics.New()
	}

	s, err := scraper.New(cfg,
		scraper.WithArchive(a.newArchive(cfg, log)),
		scraper.WithLogger(log),
		scraper.WithProgress(ui.NewProgress(cmd.ErrOrStderr(), cfg.UI.Progress && !a.quiet && !a.verbose)),
		scraper.WithMetrics(m),
		scraper.WithResume(o.resume),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := s.Run(ctx, accounts)
	printer.PrintSummary(report)
	if err != nil {
		if stderrors.Is(err, context.Canceled) {
			printer.PrintWarning("Interrupted, run again with --resume to continue")
		}
		return err
	}

	printer.PrintSuccess("[ALL ACCOUNTS COMPLETED]")
	return nil
}

// resolveAccounts returns the accounts named on the command line, or the
// configured ones when none were given
func resolveAccounts(args []string, cfg *config.Config) ([]string, error) {
	var accounts []string
	seen := make(map[string]struct{})
	source := args
	if len(source) == 0 {
		source = cfg.Accounts
	}
	for _, raw := range source {
		account := strings.TrimPrefix(strings.TrimSpace(raw), "@")
		if account == "" {
			continue
		}
		if err := config.ValidateAccount(account); err != nil {
			return nil, err
		}
		key := strings.ToLower(account)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		accounts = append(accounts, account)
	}
	if len(accounts) == 0 {
		return nil, stderrors.New("no accounts given: pass them as arguments or list them under accounts: in the config file")
	}
	return accounts, nil
}

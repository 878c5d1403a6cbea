package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"waybackscraper/pkg/config"
	"waybackscraper/pkg/ui"
)

const defaultConfigPath = ".waybackscraper.yaml"

const exampleConfig = `# waybackscraper configuration file
#
# Environment variables prefixed with WAYBACKSCRAPER_ override these values,
# for example WAYBACKSCRAPER_OUTPUT_DIR or WAYBACKSCRAPER_ACCOUNTS=nasa,esa.

# Accounts scraped when none are given on the command line
accounts: []

archive:
  cdx_url: "https://web.archive.org/cdx/search/cdx"
  web_url: "https://web.archive.org/web"

  # URL pattern searched in the CDX index, %s is the account
  profile_url: "twitter.com/%s"

  # user_agent defaults to a desktop browser string
  # user_agent: "Mozilla/5.0 ..."

  # Capture window as Wayback timestamps, 1 to 14 digits (e.g. "2016")
  from: ""
  to: ""

  # CDX rows per page
  page_size: 5000

  # Only list captures that were archived with status 200
  only_ok_status: true

output:
  base_directory: "twitter_images"
  ledger_file: "downloaded_urls.log"
  image_failure_file: "image_failures.txt"
  snapshot_failure_file: "snapshot_failures.txt"

  # Store each account in its own subdirectory
  create_account_dirs: true

download:
  # Image request timeout
  timeout: 60s

  # CDX and capture request timeout
  snapshot_timeout: 30s

  # Retry failed images through the archived original
  raw_fallback: true

dedup:
  # Captures with a content digest already processed in the run are skipped
  digest_cache_size: 4096

logging:
  # Log level: debug, info, warn, error, disabled
  level: "info"

  # Console format: console, json
  format: "console"

  # Log file path (optional, rotated)
  file: ""
  max_size: 100
  max_backups: 3
  max_age: 7
  compress: false

metrics:
  # Prometheus textfile written after each run (optional)
  textfile: ""

ui:
  progress: true
  color: true
`

func newConfigCmd(a *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration files",
		Long: `Manage waybackscraper configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (WAYBACKSCRAPER_*)
  - .env files
  - Configuration file
  - Default values (lowest priority)`,
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create an example configuration file",
		Long: `Create an example configuration file with all available options.

The file is created as '.waybackscraper.yaml' in the current directory
unless a different path is given with --config.`,
		Args: cobra.NoArgs,
		RunE: a.runConfigInit,
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE:  a.runConfigShow,
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Long: `Validate a configuration file for syntax errors and invalid values.

This command checks:
  - YAML syntax
  - Timestamps, timeouts and file names
  - Account names
  - Output and log directory accessibility`,
		Args: cobra.NoArgs,
		RunE: a.runConfigValidate,
	}

	configCmd.AddCommand(initCmd, showCmd, validateCmd)
	return configCmd
}

func (a *app) printer(cmd *cobra.Command) *ui.Printer {
	return ui.NewPrinter(cmd.OutOrStdout(), !a.noColor, a.quiet)
}

func (a *app) runConfigInit(cmd *cobra.Command, args []string) error {
	p := a.printer(cmd)

	configPath := a.configFile
	if configPath == "" {
		configPath = defaultConfigPath
	}

	if _, err := os.Stat(configPath); err == nil {
		p.PrintError("Configuration file already exists", configPath)
		return fmt.Errorf("refusing to overwrite %s", configPath)
	}

	if err := os.WriteFile(configPath, []byte(exampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	p.PrintSuccess("Configuration file created: " + configPath)
	if !p.Quiet() {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "\nNext steps:")
		fmt.Fprintln(out, "1. List the accounts to scrape under accounts:")
		fmt.Fprintln(out, "2. Run 'waybackscraper config validate' to check the configuration")
		fmt.Fprintln(out, "3. Start downloading with 'waybackscraper scrape'")
	}
	return nil
}

func (a *app) runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := a.loadConfig(nil)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	p := a.printer(cmd)
	out := cmd.OutOrStdout()
	p.PrintHighlight("Current Configuration")
	fmt.Fprintln(out)
	fmt.Fprint(out, string(data))

	fmt.Fprintln(out, "\nConfiguration sources (in order of priority):")
	fmt.Fprintln(out, "1. Command line flags")
	fmt.Fprintf(out, "2. Environment variables (%s*)\n", config.EnvPrefix)
	fmt.Fprintln(out, "3. .env files")
	if a.configFile != "" {
		fmt.Fprintf(out, "4. Configuration file: %s\n", a.configFile)
	} else {
		fmt.Fprintln(out, "4. Configuration file: (searched in default locations)")
	}
	fmt.Fprintln(out, "5. Default values")
	return nil
}

func (a *app) runConfigValidate(cmd *cobra.Command, args []string) error {
	p := a.printer(cmd)

	configPath := a.configFile
	if configPath == "" {
		home := os.Getenv("HOME")
		for _, path := range []string{
			defaultConfigPath,
			".waybackscraper.yml",
			"waybackscraper.yaml",
			filepath.Join(home, ".config", "waybackscraper", "config.yaml"),
			filepath.Join(home, ".waybackscraper.yaml"),
		} {
			if _, err := os.Stat(path); err == nil {
				configPath = path
				break
			}
		}
		if configPath == "" {
			p.PrintError("No configuration file found", "specify a file with --config")
			return fmt.Errorf("no configuration file found")
		}
	}

	p.PrintInfo("Validating configuration", configPath)

	cfg, err := config.Load(configPath, nil)
	if err != nil {
		p.PrintError("Configuration validation failed", err)
		return err
	}

	var problems, warnings []string
	if err := os.MkdirAll(cfg.Output.BaseDirectory, 0755); err != nil {
		problems = append(problems, fmt.Sprintf("cannot create output directory: %v", err))
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create log directory: %v", err))
		}
	}
	if len(cfg.Accounts) == 0 {
		warnings = append(warnings, "no accounts configured, they must be given on the command line")
	}
	if !cfg.Archive.OnlyOKStatus {
		warnings = append(warnings, "only_ok_status is off, redirect and error captures will be fetched")
	}

	out := cmd.OutOrStdout()
	if len(problems) > 0 {
		p.PrintError("Configuration has errors:")
		for _, msg := range problems {
			fmt.Fprintf(out, "  - %s\n", msg)
		}
		return fmt.Errorf("configuration has %d error(s)", len(problems))
	}

	if len(warnings) > 0 && !p.Quiet() {
		p.PrintWarning("Configuration warnings:")
		for _, msg := range warnings {
			fmt.Fprintf(out, "  - %s\n", msg)
		}
		fmt.Fprintln(out)
	}

	p.PrintSuccess("Configuration is valid")
	if !p.Quiet() {
		fmt.Fprintln(out, "\nConfiguration summary:")
		fmt.Fprintf(out, "  Accounts: %v\n", cfg.Accounts)
		fmt.Fprintf(out, "  Output directory: %s\n", cfg.Output.BaseDirectory)
		fmt.Fprintf(out, "  Capture window: %q to %q\n", cfg.Archive.From, cfg.Archive.To)
		fmt.Fprintf(out, "  Download timeout: %s\n", cfg.Download.Timeout)
		fmt.Fprintf(out, "  Raw fallback: %t\n", cfg.Download.RawFallback)
		fmt.Fprintf(out, "  Log level: %s\n", cfg.Logging.Level)
	}
	return nil
}

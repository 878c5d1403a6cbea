/*
Package scraper drives a run: for each account it lists the archived
captures of the account's pages, fetches them one by one, extracts the images
the account posted, drops the ones already seen or stored and downloads the
rest.

Basic usage:

	cfg := config.DefaultConfig()
	s, err := scraper.New(cfg)
	if err != nil {
		return err
	}
	report, err := s.Run(ctx, []string{"nasa"})

Only setup problems stop a run: an account directory that cannot be created,
a ledger that cannot be read or a failure log that cannot be opened. Missing
captures, failed fetches, unparsable pages and failed downloads are logged,
appended to the account's failure logs and skipped.

Each account directory holds:

	<account>_<media id>.jpg   downloaded images
	downloaded_urls.log        normalized URLs already stored
	image_failures.txt         failed downloads
	snapshot_failures.txt      captures that could not be fetched or parsed
	summary.json               outcome of the latest run
	.checkpoint.json           processed captures, only after an interrupted run

Processing is sequential. Cancelling the context stops the run before the
next request; with WithResume the following run skips the captures that were
already completed.
*/
package scraper

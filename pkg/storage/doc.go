// Package storage manages the flat files of an account's output directory.
//
// Manager saves images atomically under deterministic names and answers
// whether a file is already present. Ledger is the downloaded-URL list that
// survives between runs. FailureLog appends timestamped image and snapshot
// failure lines of the form
//
//	[2024-05-01 12:00:00] image https://pbs.twimg.com/media/x.jpg | status 404 (run 3f2a...)
package storage

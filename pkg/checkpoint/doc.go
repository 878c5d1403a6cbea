// Package checkpoint lets an interrupted run resume where it stopped.
//
// A checkpoint lists the snapshots of one account that were fetched, parsed
// and whose images were all handled. It lives next to the images in the
// account directory and is removed once the account completes, so only
// interrupted runs leave one behind.
package checkpoint

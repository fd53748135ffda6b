/*
Package reporter defines the interface cfswitchd's periodic status line uses to ask any
stats-carrying component for a printable summary of itself.

The string returned by Report() should be one or more lines separated by newlines suitable for
printing to cfswitchd's status log. cmd/cfswitchd's statusReport splits multi-line reports up and
prefixes each line with the kind of report ("Status" or "User1") and the reporter's Name(), so most single-line reporters (for
example internal/connectiontracker.Tracker, which reports the observability server's connection
churn) don't bother with a trailing newline of their own.
*/
package reporter

// Reporter is the sole package interface.
type Reporter interface {

	// Name returns the name of the reportable component. Used as a prefix for its report lines in
	// cfswitchd's status output.
	Name() string

	// Report returns one or more printable lines separated by newlines. If resetCounters is true,
	// any internal values used to produce the report are reset to zero after the report is
	// produced - cfswitchd's SIGUSR1 handler passes false for an on-demand snapshot and true for
	// the regular periodic report, so counters read as "since the last periodic report" rather
	// than "since process start". Implementations must be safe for concurrent Report() calls.
	Report(resetCounters bool) string
}

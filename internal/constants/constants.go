/*
Package constants provides common values used across all cfswitchd packages. Usage is to call the
global Get() function which returns the Constants by value ensuring that any modifications made
(accidental or otherwise) will not affect other modules when they call Get().

Typically usage:

    consts := constants.Get()
    fmt.Println("I am", consts.ProgramName, "based on", consts.PackageURL)

The primary reason for making this a constructed struct rather than the more typical const () block
is so that it can be fed directly into templating packages for printing usage messages.
*/
package constants

// Constants contains the system-wide constants
type Constants struct {
	ProgramName string
	Version     string
	PackageName string
	PackageURL  string

	CloudflareAPIBase string // DNS provider related constants
	RecordComment     string // Fixed comment attached to every managed provider record

	TelegramAPIBase string // Notification provider related constants

	DNSDefaultPort       string // DNS Related constants
	DNSResolveTimeout    string // Documented default per-query receive timeout
	ObservableBindAddr   string // Default bind address for the observability HTTP server
	NotificationMaxQueue int    // Fatal if the notification queue ever exceeds this length
	NotificationDrain    string // Drain cadence when the notification queue is non-empty
	DelayedMessageAfter  string // Threshold beyond which a queued message is annotated as delayed

	DefaultProbeTimeout string // Default per-phase HTTP probe timeout when unset in config
}

var readOnlyConstants *Constants

// createReadOnlyConstants creates a read-only copy of the Constants which is copied whenever a
// caller asks for the constants set. The main reason for returning a struct is so that callers can
// inspect and/or use packages that introspect - particularly */template packages.
func createReadOnlyConstants() {
	const programName = "cfswitchd"
	const version = "v0.1.0"

	readOnlyConstants = &Constants{
		ProgramName: programName,
		Version:     version,
		PackageName: "Cloudflare CNAME Switcher",
		PackageURL:  "https://github.com/simonmicro/cloudflare-cname-switcher",

		CloudflareAPIBase: "https://api.cloudflare.com/client/v4",
		RecordComment:     "Managed by " + programName + " " + version,

		TelegramAPIBase: "https://api.telegram.org",

		DNSDefaultPort:       "53",
		DNSResolveTimeout:    "10s",
		ObservableBindAddr:   "[::]:3000",
		NotificationMaxQueue: 128,
		NotificationDrain:    "30s",
		DelayedMessageAfter:  "10s",

		DefaultProbeTimeout: "5s",
	}
}

func init() {
	createReadOnlyConstants()
}

// Get returns a copy of the Constant struct. Return by value so internal values cannot be
// inadvertently changed by callers.
func Get() Constants {
	return *readOnlyConstants
}

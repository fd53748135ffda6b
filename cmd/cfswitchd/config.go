package main

type cliConfig struct {
	gops    bool
	help    bool
	quiet   bool
	verbose bool
	version bool

	configPath string
}

func parseCommandLine(args []string) error {
	flagSet.BoolVar(&cfg.gops, "gops", false, "Start a github.com/google/gops diagnostics agent")
	flagSet.BoolVar(&cfg.help, "h", false, "Print usage message to Stdout then exit(0)")
	flagSet.BoolVar(&cfg.quiet, "q", false, "Suppress status and informational output; errors are still printed")
	flagSet.BoolVar(&cfg.verbose, "v", false, "Verbose status and change-event logging")
	flagSet.BoolVar(&cfg.version, "version", false, "Print version then exit(0)")

	flagSet.StringVar(&cfg.configPath, "c", "/etc/cfswitchd/config.yaml", "`path` to the YAML configuration file")

	return flagSet.Parse(args[1:])
}

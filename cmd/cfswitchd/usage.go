package main

import (
	"fmt"
	"io"
	"text/template"
)

const usageMessageTemplate = `
NAME
          {{.ProgramName}} -- keeps a DNS record pointed at the healthiest of several candidate endpoints

SYNOPSIS
          {{.ProgramName}} [options]

DESCRIPTION
          {{.ProgramName}} monitors a set of candidate endpoints over HTTP and keeps a single DNS
          record - managed via the Cloudflare API - pointed at whichever one is both healthy and
          has the lowest configured weight. When more than one endpoint must share the record
          during a handover (sticky rollover), the record becomes a set of A/AAAA addresses
          instead of a single CNAME.

          Configuration, including the managed record, the candidate endpoints, Cloudflare
          credentials and an optional Telegram notification sink, is read from a YAML file (-c).
          The file is re-read on SIGHUP or whenever it changes on disk.

OPTIONS
`

const usageTrailer = `
SIGNALS
          SIGHUP  reload the configuration file
          SIGUSR1 print a status report immediately
          SIGINT, SIGTERM
                  shut down cleanly

EXIT STATUS
          0 on a clean shutdown, 1 on a fatal startup or configuration error.
`

func usage(out io.Writer) {
	t := template.Must(template.New("usage").Parse(usageMessageTemplate))
	t.Execute(out, consts)
	flagSet.SetOutput(out)
	flagSet.PrintDefaults()
	fmt.Fprint(out, usageTrailer)
}

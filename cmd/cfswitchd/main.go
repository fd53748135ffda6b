// cfswitchd keeps a managed DNS record pointed at the healthiest configured endpoint.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/google/gops/agent"

	"github.com/simonmicro/cloudflare-cname-switcher/internal/config"
	"github.com/simonmicro/cloudflare-cname-switcher/internal/constants"
	"github.com/simonmicro/cloudflare-cname-switcher/internal/httpserver"
	"github.com/simonmicro/cloudflare-cname-switcher/internal/metrics"
	"github.com/simonmicro/cloudflare-cname-switcher/internal/notify"
	"github.com/simonmicro/cloudflare-cname-switcher/internal/reconciler"
	"github.com/simonmicro/cloudflare-cname-switcher/internal/reporter"
	"github.com/simonmicro/cloudflare-cname-switcher/internal/selector"
)

var (
	consts = constants.Get()
	cfg    *cliConfig

	stdout io.Writer
	stderr io.Writer

	startTime                = time.Now()
	mainStarted, mainStopped bool
	stopChannel              chan os.Signal
	flagSet                  *flag.FlagSet
)

func fatal(args ...interface{}) int {
	fmt.Fprint(stderr, "Fatal: ", consts.ProgramName, ": ")
	fmt.Fprintln(stderr, args...)
	return 1
}

func mainInit(out, err io.Writer) {
	cfg = &cliConfig{}
	stdout = out
	stderr = err
	mainStarted = false
	mainStopped = false
	stopChannel = make(chan os.Signal, 4)
	signal.Notify(stopChannel, syscall.SIGINT, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGUSR1)
}

func main() {
	mainInit(os.Stdout, os.Stderr)
	os.Exit(mainExecute(os.Args))
}

// running bundles everything one loaded configuration spins up, so a reload can cleanly tear one
// down and start another in its place.
type running struct {
	stop  chan struct{}
	done  chan error
	queue *notify.Queue
}

func startRunning(cfg *config.Config, httpSrv *httpserver.Server, verbose bool) (*running, error) {
	reg := metrics.New()

	cfClient := reconciler.NewClient(cfg.Cloudflare.ZoneID, cfg.Cloudflare.Token)
	cfClient.OnUpdateDuration = reg.ObserveCloudflareUpdate

	var queue *notify.Queue
	if cfg.Telegram != nil {
		bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		queue = notify.New(bot, cfg.Telegram.ChatID)
		queue.OnSendDuration = reg.ObserveTelegramSend
		queue.OnQueueLength = reg.SetTelegramQueueLength
	}

	var log io.Writer
	if verbose {
		log = stdout
	}

	sel := &selector.Selector{
		Record:     cfg.Record,
		Endpoints:  cfg.Endpoints,
		Reconciler: cfClient,
		Notify:     queue,
		Metrics:    reg,
		Log:        log,
	}

	httpSrv.SetRegistry(reg)

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- sel.Run(stop) }()

	return &running{stop: stop, done: done, queue: queue}, nil
}

func stopRunning(r *running) {
	close(r.stop)
	<-r.done
}

func mainExecute(args []string) int {
	flagSet = flag.NewFlagSet(args[0], flag.ContinueOnError)
	flagSet.SetOutput(stderr)
	if err := parseCommandLine(args); err != nil {
		return 1
	}
	if cfg.help {
		usage(stdout)
		return 0
	}
	if cfg.version {
		fmt.Fprintln(stdout, consts.ProgramName, consts.Version)
		return 0
	}

	if cfg.gops {
		if err := agent.Listen(agent.Options{}); err != nil {
			return fatal("gops:", err)
		}
	}

	loaded, err := config.Load(cfg.configPath)
	if err != nil {
		if errors.Is(err, config.ErrLegacyConfig) {
			for _, line := range config.LegacyConfigBanner() {
				fmt.Fprintln(stderr, line)
			}
		}
		return fatal(err)
	}

	httpSrv := httpserver.New(consts.ObservableBindAddr)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil {
			fmt.Fprintln(stderr, "observability server:", err)
		}
	}()
	defer httpSrv.Close()

	cur, err := startRunning(loaded, httpSrv, cfg.verbose)
	if err != nil {
		return fatal(err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fatal(err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(cfg.configPath)); err != nil {
		return fatal(err)
	}

	reload := func() {
		newCfg, err := config.Load(cfg.configPath)
		if err != nil {
			fmt.Fprintln(stderr, "reload failed, keeping previous configuration:", err)
			return
		}
		// Drop the metrics registry before tearing down the old selector so a scrape landing in
		// the gap gets a clean 500 instead of stale or half-updated series.
		httpSrv.SetRegistry(nil)
		stopRunning(cur)
		next, err := startRunning(newCfg, httpSrv, cfg.verbose)
		if err != nil {
			fmt.Fprintln(stderr, "reload failed to start new configuration:", err)
			return
		}
		cur = next
		if !cfg.quiet {
			fmt.Fprintln(stdout, "configuration reloaded")
		}
	}

	mainStarted = true
	nextStatusIn := nextInterval(time.Now(), 15*time.Minute)

Running:
	for {
		select {
		case s := <-stopChannel:
			if s == syscall.SIGUSR1 {
				statusReport("User1", false, httpSrv.Reporters())
				continue
			}
			if s == syscall.SIGHUP {
				reload()
				continue
			}
			if !cfg.quiet {
				fmt.Fprintln(stdout, "\nSignal", s)
			}
			break Running

		case ev := <-watcher.Events:
			if ev.Name == cfg.configPath && (ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				reload()
			}

		case err := <-watcher.Errors:
			fmt.Fprintln(stderr, "config watcher:", err)

		case err := <-cur.done:
			return fatal("selector terminated unexpectedly:", err)

		case <-time.After(nextStatusIn):
			if !cfg.quiet {
				statusReport("Status", true, httpSrv.Reporters())
			}
			nextStatusIn = nextInterval(time.Now(), 15*time.Minute)
		}
	}

	stopRunning(cur)
	mainStopped = true

	if !cfg.quiet {
		statusReport("Status", true, httpSrv.Reporters())
		fmt.Fprintln(stdout, consts.ProgramName, consts.Version, "Exiting after", uptime())
	}

	return 0
}

func nextInterval(now time.Time, interval time.Duration) time.Duration {
	return now.Truncate(interval).Add(interval).Sub(now)
}

func uptime() string {
	return time.Since(startTime).Truncate(time.Second).String()
}

func statusReport(what string, resetCounters bool, reporters []reporter.Reporter) {
	fmt.Fprintln(stdout, "Status Up:", consts.ProgramName, consts.Version, uptime())
	for _, r := range reporters {
		for _, line := range strings.Split(r.Report(resetCounters), "\n") {
			if len(line) > 0 {
				fmt.Fprintf(stdout, "%s %s: %s\n", what, r.Name(), line)
			}
		}
	}
}

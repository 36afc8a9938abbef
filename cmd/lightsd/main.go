// Command lightsd discovers LIFX bulbs on the local network and serves a
// JSON-RPC control plane for them. Flag parsing and JSON-RPC framing are
// thin wrappers around the core (spec.md §1); they carry no invariants of
// their own. The process runs in the foreground; it does not daemonize.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lightsd-go/lightsd/internal/config"
	"github.com/lightsd-go/lightsd/internal/jsonrpc"
	"github.com/lightsd-go/lightsd/internal/logutil"
	"github.com/lightsd-go/lightsd/pkg/core"
)

// Exit codes consumed by the outer program (spec.md §6).
const (
	exitOK            = 0
	exitSetupFailure  = 1
	exitInvalidConfig = 2
)

type cliFlags struct {
	verbosity       string
	activeInterval  int
	passiveInterval int
	deviceTimeout   int
	watchdogPeriod  int
	refreshPeriod   int
	listenTCP       string
	listenUnix      string
}

func main() {
	os.Exit(runMain(os.Args[1:]))
}

func runMain(args []string) int {
	flags := &cliFlags{}
	root := newRootCommand(flags)
	root.SetArgs(args)

	exitCode := exitOK
	root.RunE = func(cmd *cobra.Command, _ []string) error {
		code, err := runDaemon(flags)
		exitCode = code
		return err
	}

	if err := root.Execute(); err != nil {
		log.WithError(err).Error("lightsd exiting")
		if exitCode == exitOK {
			exitCode = exitSetupFailure
		}
	}
	return exitCode
}

func newRootCommand(flags *cliFlags) *cobra.Command {
	root := &cobra.Command{
		Use:           "lightsd",
		Short:         "Discover and control LIFX bulbs on the LAN",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.verbosity, "verbosity", string(config.VerbosityInfo), "log level: debug|info|warning|error")
	root.PersistentFlags().IntVar(&flags.activeInterval, "active-discovery-interval-ms", int(config.DefaultActiveDiscoveryInterval.Milliseconds()), "initial discovery period")
	root.PersistentFlags().IntVar(&flags.passiveInterval, "passive-discovery-interval-ms", int(config.DefaultPassiveDiscoveryInterval.Milliseconds()), "cap on discovery period")
	root.PersistentFlags().IntVar(&flags.deviceTimeout, "device-timeout-ms", int(config.DefaultDeviceTimeout.Milliseconds()), "watchdog staleness threshold")
	root.PersistentFlags().IntVar(&flags.watchdogPeriod, "watchdog-interval-ms", int(config.DefaultWatchdogInterval.Milliseconds()), "watchdog firing cadence")
	root.PersistentFlags().IntVar(&flags.refreshPeriod, "refresh-period-ms", int(config.DefaultRefreshPeriod.Milliseconds()), "per-bulb refresh cadence")
	root.PersistentFlags().StringVar(&flags.listenTCP, "listen-tcp", "127.0.0.1:9988", "JSON-RPC TCP listen address, empty to disable")
	root.PersistentFlags().StringVar(&flags.listenUnix, "listen-unix", "", "JSON-RPC Unix socket path, empty to disable")

	return root
}

// runDaemon builds the config, opens the core and control-plane listeners,
// and blocks until a signal triggers shutdown. The returned int is the
// process exit code to use whether or not err is nil.
func runDaemon(flags *cliFlags) (int, error) {
	cfg := &config.Config{
		Verbosity:                config.Verbosity(flags.verbosity),
		ActiveDiscoveryInterval:  time.Duration(flags.activeInterval) * time.Millisecond,
		PassiveDiscoveryInterval: time.Duration(flags.passiveInterval) * time.Millisecond,
		DeviceTimeout:            time.Duration(flags.deviceTimeout) * time.Millisecond,
		WatchdogInterval:         time.Duration(flags.watchdogPeriod) * time.Millisecond,
		RefreshPeriod:            time.Duration(flags.refreshPeriod) * time.Millisecond,
	}
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return exitInvalidConfig, err
	}

	logutil.Init(cfg.Verbosity)

	c, err := core.New(cfg)
	if err != nil {
		return exitSetupFailure, fmt.Errorf("failed to initialize core: %w", err)
	}

	listeners, err := openListeners(flags)
	if err != nil {
		return exitSetupFailure, fmt.Errorf("failed to bind control-plane listener: %w", err)
	}

	rpcServer := jsonrpc.New(c)
	for _, ln := range listeners {
		go func(ln net.Listener) {
			if err := rpcServer.Serve(ln); err != nil {
				log.WithError(err).Warn("JSON-RPC listener exited")
			}
		}(ln)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sig
		log.Info("Shutting down")
		c.Shutdown()
		for _, ln := range listeners {
			ln.Close()
		}
	}()

	c.Run()
	return exitOK, nil
}

func openListeners(flags *cliFlags) ([]net.Listener, error) {
	var listeners []net.Listener

	if flags.listenTCP != "" {
		ln, err := net.Listen("tcp", flags.listenTCP)
		if err != nil {
			return nil, err
		}
		listeners = append(listeners, ln)
	}

	if flags.listenUnix != "" {
		os.Remove(flags.listenUnix)
		ln, err := net.Listen("unix", flags.listenUnix)
		if err != nil {
			return nil, err
		}
		listeners = append(listeners, ln)
	}

	return listeners, nil
}

package main

import (
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/the-lightning-land/netmond/api"
	"github.com/the-lightning-land/netmond/connectivity"
	"github.com/the-lightning-land/netmond/join"
	"github.com/the-lightning-land/netmond/netdb"
	"github.com/the-lightning-land/netmond/network"
	"github.com/the-lightning-land/netmond/network/netpoll"
	"github.com/the-lightning-land/netmond/network/nm"
	"github.com/the-lightning-land/netmond/supervisor"
	// Blank import to set up profiling HTTP handlers.
	_ "net/http/pprof"
)

var (
	// commit stores the current commit hash of this build. This should be set using -ldflags during compilation.
	Commit string
	// version stores the version string of this build. This should be set using -ldflags during compilation.
	Version string
	// date stores the date of this build. This should be set using -ldflags during compilation.
	Date string
)

type source interface {
	network.Source
	Start() error
	Stop() error
}

// configureLogging sets up the standard logger all subsystems log through.
func configureLogging(out io.Writer, debug bool) {
	log.SetOutput(out)

	if debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// subsystem returns a logger entry of the standard logger for the named
// part of the daemon.
func subsystem(name string) *log.Entry {
	return log.WithField("system", name)
}

// netmondMain is the true entry point for netmond. This is required since defers
// created in the top-level scope of a main method aren't executed if os.Exit() is called.
func netmondMain() error {
	configureLogging(os.Stdout, false)

	// Load CLI configuration and defaults
	cfg, err := loadConfig()
	if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
		return nil
	} else if err != nil {
		return errors.Errorf("Failed parsing arguments: %v", err)
	}

	// Set logger into debug mode if called with --debug
	if cfg.Debug {
		configureLogging(os.Stdout, true)
		log.Info("Setting debug mode.")
	}

	log.Debug("Loaded config.")

	// Print version of the daemon
	log.Infof("Version %s (commit %s)", Version, Commit)
	log.Infof("Built on %s", Date)

	// Stop here if only version was requested
	if cfg.ShowVersion {
		return nil
	}

	if cfg.Profiling.Listen != "" {
		go func() {
			log.Infof("Starting profiling server on %v", cfg.Profiling.Listen)
			// Redirect the root path
			http.Handle("/", http.RedirectHandler("/debug/pprof", http.StatusSeeOther))
			// All other handlers are registered on DefaultServeMux through the import of pprof
			err := http.ListenAndServe(cfg.Profiling.Listen, nil)
			if err != nil {
				log.Errorf("Could not run profiler: %v", err)
			}
		}()
	}

	// netmond.db stores the last join and the journal of connectivity events
	db, err := netdb.Open(cfg.DataDir)
	if err != nil {
		return errors.Errorf("Could not open netmond.db: %v", err)
	}

	log.Infof("Opened %v", db.Path())

	defer func() {
		err := db.Close()
		if err != nil {
			log.Errorf("Could not close netmond.db: %v", err)
		} else {
			log.Info("Closed netmond.db.")
		}
	}()

	// The connectivity source, which reports changes of the active network
	var s source

	switch cfg.Source {
	case "networkmanager":
		s = nm.New(&nm.Config{
			Logger: subsystem("nm"),
		})

		log.Info("Created NetworkManager source.")
	case "poll":
		s = netpoll.New(&netpoll.Config{
			Interval: cfg.Poll.Interval,
			Logger:   subsystem("netpoll"),
		})

		log.Infof("Created polling source with an interval of %v.", cfg.Poll.Interval)
	default:
		return errors.Errorf("Unknown source type %v", cfg.Source)
	}

	err = s.Start()
	if err != nil {
		return errors.Errorf("Could not start source: %v", err)
	}

	defer func() {
		err := s.Stop()
		if err != nil {
			log.Errorf("Could not properly stop source: %v", err)
		} else {
			log.Info("Stopped source.")
		}
	}()

	// The wireless adapter joins are made through
	adapter := network.NewWpaAdapter(&network.WpaConfig{
		Interface: cfg.Wpa.Interface,
		Logger:    subsystem("wpa"),
	})

	err = adapter.Start()
	if err != nil {
		return errors.Errorf("Could not start wpa_supplicant adapter: %v", err)
	}

	log.Infof("Started wpa_supplicant adapter on %v.", cfg.Wpa.Interface)

	defer func() {
		err := adapter.Stop()
		if err != nil {
			log.Errorf("Could not properly stop adapter: %v", err)
		} else {
			log.Info("Stopped adapter.")
		}
	}()

	tracker := connectivity.New(&connectivity.Config{
		Source: s,
		Logger: subsystem("connectivity"),
	})

	log.Info("Created connectivity tracker.")

	joinConfig := &join.Config{
		Adapter: adapter,
		Status:  tracker.Monitor(network.Wifi),
		Timeout: cfg.Join.Timeout,
		Queue:   cfg.Join.Queue,
		Logger:  subsystem("join"),
	}

	if cfg.Join.Alternate {
		joinConfig.Alternate = adapter
	}

	coordinator, err := join.New(joinConfig)
	if err != nil {
		return errors.Errorf("Could not create join coordinator: %v", err)
	}

	log.Info("Created join coordinator.")

	// central controller for everything netmond does
	sup, err := supervisor.New(&supervisor.Config{
		Tracker: tracker,
		Joiner:  coordinator,
		Store:   db,
		Rejoin:  !cfg.Join.NoRejoin,
		Logger:  subsystem("supervisor"),
	})
	if err != nil {
		return errors.Errorf("Could not create supervisor: %v", err)
	}

	log.Info("Created supervisor.")

	a := api.New(&api.Config{
		Daemon:  sup,
		Scanner: adapter,
		Log:     subsystem("api"),
	})

	lis, err := net.Listen("tcp", cfg.Api.Listen)
	if err != nil {
		return errors.Errorf("API server unable to listen on %v: %v", cfg.Api.Listen, err)
	}

	defer func() {
		err := lis.Close()
		if err != nil && !errors.Is(err, net.ErrClosed) {
			log.Errorf("Could not close listener: %v", err)
		}
	}()

	go func() {
		log.Infof("Serving api on %v", lis.Addr())

		err := a.Serve(lis)
		if err != nil {
			log.Errorf("Could not serve api: %v", err)
		}
	}()

	// Handle interrupt signals correctly
	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		sig := <-signals
		log.Info(sig)
		log.Info("Received an interrupt, stopping netmond...")
		sup.Shutdown()
	}()

	// blocks until the supervisor is shut down
	err = sup.Run()
	if err != nil {
		return errors.Errorf("Failed running supervisor: %v", err)
	}

	// finish with no error
	return nil
}

func main() {
	// Call the "real" main in a nested manner so the defers will properly
	// be executed in the case of a graceful shutdown.
	if err := netmondMain(); err != nil {
		log.WithError(err).Println("Failed running netmond.")
		os.Exit(1)
	}
}

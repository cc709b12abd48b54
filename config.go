package main

import (
	"time"

	"github.com/jessevdk/go-flags"
)

const (
	defaultDataDir      = "/var/lib/netmond"
	defaultSource       = "networkmanager"
	defaultPollInterval = 2 * time.Second
	defaultWpaInterface = "wlan0"
	defaultJoinTimeout  = 30 * time.Second
	defaultApiListen    = "localhost:9000"
)

type pollConfig struct {
	Interval time.Duration `long:"interval" description:"How often network interfaces are polled"`
}

type wpaConfig struct {
	Interface string `long:"interface" description:"The wireless interface controlled through wpa_supplicant"`
}

type joinConfig struct {
	Timeout   time.Duration `long:"timeout" description:"How long a join waits for the association to be confirmed"`
	Queue     bool          `long:"queue" description:"Queue joins behind a running one instead of rejecting them"`
	Alternate bool          `long:"alternate" description:"Join through a disconnect followed by a direct profile selection"`
	NoRejoin  bool          `long:"norejoin" description:"Do not rejoin the last joined network on start"`
}

type apiConfig struct {
	Listen string `long:"listen" description:"Address the HTTP api listens on"`
}

type profilingConfig struct {
	Listen string `long:"listen" description:"Enable profiling and listen on the given address"`
}

type config struct {
	ShowVersion bool             `short:"v" long:"version" description:"Display version information and exit"`
	Debug       bool             `long:"debug" description:"Start in debug mode"`
	DataDir     string           `long:"datadir" description:"The directory to store netmond's data within"`
	Source      string           `long:"source" description:"Where connectivity changes come from" choice:"networkmanager" choice:"poll"`
	Poll        *pollConfig      `group:"Poll" namespace:"poll"`
	Wpa         *wpaConfig       `group:"wpa_supplicant" namespace:"wpa"`
	Join        *joinConfig      `group:"Join" namespace:"join"`
	Api         *apiConfig       `group:"API" namespace:"api"`
	Profiling   *profilingConfig `group:"Profiling" namespace:"profiling"`
}

// loadConfig parses the command line on top of the defaults.
func loadConfig() (*config, error) {
	cfg := config{
		DataDir: defaultDataDir,
		Source:  defaultSource,
		Poll: &pollConfig{
			Interval: defaultPollInterval,
		},
		Wpa: &wpaConfig{
			Interface: defaultWpaInterface,
		},
		Join: &joinConfig{
			Timeout: defaultJoinTimeout,
		},
		Api: &apiConfig{
			Listen: defaultApiListen,
		},
		Profiling: &profilingConfig{},
	}

	_, err := flags.Parse(&cfg)
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

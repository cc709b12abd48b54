package api

import (
	"context"
	"net"
	"net/http"

	"github.com/go-errors/errors"
	"github.com/gorilla/mux"
	"github.com/the-lightning-land/netmond/connectivity"
	"github.com/the-lightning-land/netmond/join"
	"github.com/the-lightning-land/netmond/netdb"
	"github.com/the-lightning-land/netmond/network"
	"github.com/the-lightning-land/netmond/supervisor"
	"go.uber.org/atomic"
)

// check compliance of the daemon parts during compile time
var _ Daemon = (*supervisor.Supervisor)(nil)
var _ Scanner = (*network.WpaAdapter)(nil)

// Daemon is what the api exposes.
type Daemon interface {
	Status() *supervisor.Status
	Subscribe() *connectivity.Client
	History(limit int) ([]*netdb.Record, error)
	Join(ctx context.Context, req *join.Request) (*join.Result, error)
	LastJoin() (*netdb.LastJoin, error)
}

type Scanner interface {
	Scan() (*network.ScanClient, error)
}

type Config struct {
	Daemon Daemon
	// Scanner is optional, scanning is unavailable without one.
	Scanner Scanner
	Log     Logger
}

type Api struct {
	daemon  Daemon
	scanner Scanner
	router  *mux.Router
	log     Logger
	clients atomic.Int32
}

func New(config *Config) *Api {
	api := &Api{
		daemon:  config.Daemon,
		scanner: config.Scanner,
		router:  mux.NewRouter(),
	}

	if config.Log != nil {
		api.log = config.Log
	} else {
		api.log = noopLogger{}
	}

	api.router.Handle("/api/v1/network", api.handleGetNetwork()).Methods(http.MethodGet)
	api.router.Handle("/api/v1/network/events", api.handleGetNetworkEvents()).Methods(http.MethodGet)
	api.router.Handle("/api/v1/network/history", api.handleGetNetworkHistory()).Methods(http.MethodGet)

	api.router.Handle("/api/v1/wifis", api.handleGetWifis()).Methods(http.MethodGet)

	api.router.Handle("/api/v1/joins", api.handlePostJoin()).Methods(http.MethodPost)
	api.router.Handle("/api/v1/joins/last", api.handleGetLastJoin()).Methods(http.MethodGet)

	return api
}

func (a *Api) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// Serve blocks until the listener is closed.
func (a *Api) Serve(l net.Listener) error {
	err := http.Serve(l, a.router)
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return errors.Errorf("Unable to serve api: %v", err)
	}

	return nil
}

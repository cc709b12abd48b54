package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/the-lightning-land/netmond/netdb"
)

const (
	defaultHistoryLimit = 100

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

type transportResponse struct {
	Transport string           `json:"transport"`
	Connected bool             `json:"connected"`
	Current   *networkResponse `json:"current"`
}

type attemptResponse struct {
	Id       string     `json:"id"`
	Ssid     string     `json:"ssid"`
	Security string     `json:"security"`
	State    string     `json:"state"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

type getNetworkResponse struct {
	Active     *networkResponse     `json:"active"`
	Transports []*transportResponse `json:"transports"`
	Joining    *attemptResponse     `json:"joining"`
	Listeners  int32                `json:"listeners"`
}

type networkEvent struct {
	Id        string           `json:"id"`
	Kind      string           `json:"kind"`
	Transport string           `json:"transport"`
	Current   *networkResponse `json:"current"`
	Previous  *networkResponse `json:"previous"`
	Time      time.Time        `json:"time"`
}

type getNetworkHistoryResponse struct {
	Events []*netdb.Record `json:"events"`
}

func (a *Api) handleGetNetwork() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := a.daemon.Status()

		res := &getNetworkResponse{
			Active:     networkOf(status.Active),
			Transports: []*transportResponse{},
			Listeners:  a.clients.Load(),
		}

		for _, ts := range status.Transports {
			res.Transports = append(res.Transports, &transportResponse{
				Transport: ts.Transport.String(),
				Connected: ts.Connected,
				Current:   networkOf(ts.Current),
			})
		}

		if attempt := status.Joining; attempt != nil {
			res.Joining = &attemptResponse{
				Id:       attempt.ID.String(),
				Ssid:     attempt.Target,
				Security: attempt.Security.String(),
				State:    attempt.State.String(),
				Deadline: timeOrNil(attempt.Deadline),
			}
		}

		a.jsonResponse(w, res, http.StatusOK)
	}
}

func (a *Api) handleGetNetworkHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultHistoryLimit

		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				a.jsonError(w, "limit must be a positive number", http.StatusBadRequest)
				return
			}

			limit = n
		}

		records, err := a.daemon.History(limit)
		if err != nil {
			a.log.Errorf("Could not read history: %v", err)
			a.jsonError(w, "Could not read history", http.StatusInternalServerError)
			return
		}

		if records == nil {
			records = []*netdb.Record{}
		}

		a.jsonResponse(w, &getNetworkHistoryResponse{Events: records}, http.StatusOK)
	}
}

func (a *Api) handleGetNetworkEvents() http.HandlerFunc {
	upgrader := &websocket.Upgrader{}

	return func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// the upgrader already responded
			a.log.Warnf("Could not upgrade connection: %v", err)
			return
		}

		defer c.Close()

		client := a.daemon.Subscribe()
		defer client.Cancel()

		a.clients.Inc()
		defer a.clients.Dec()

		events, overflow := forward(client.Events, eventBuffer)

		closed := make(chan struct{})

		// read pump
		go func() {
			defer close(closed)

			c.SetReadLimit(512)
			_ = c.SetReadDeadline(time.Now().Add(pongWait))
			c.SetPongHandler(func(string) error {
				return c.SetReadDeadline(time.Now().Add(pongWait))
			})

			for {
				_, _, err := c.ReadMessage()
				if err != nil {
					if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
						a.log.Errorf("unexpected websocket closure: %v", err)
					}
					break
				}
			}
		}()

		// write pump
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case event, ok := <-events:
				_ = c.SetWriteDeadline(time.Now().Add(writeWait))

				if !ok {
					_ = c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}

				err := c.WriteJSON(&networkEvent{
					Id:        event.ID.String(),
					Kind:      event.Kind.String(),
					Transport: event.Transport.String(),
					Current:   networkOf(event.Current),
					Previous:  networkOf(event.Previous),
					Time:      event.Time,
				})
				if err != nil {
					return
				}
			case <-ticker.C:
				_ = c.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-overflow:
				a.log.Warnf("Closing websocket of %v, it fell behind by %v events", r.RemoteAddr, eventBuffer)
				_ = c.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too slow"))
				return
			case <-closed:
				return
			}
		}
	}
}

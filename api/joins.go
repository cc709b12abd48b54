package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-errors/errors"
	"github.com/the-lightning-land/netmond/join"
)

type postJoinRequest struct {
	Ssid         string `json:"ssid"`
	Capabilities string `json:"capabilities"`
	Credential   string `json:"credential"`
	Bssid        string `json:"bssid"`
}

type postJoinResponse struct {
	Id       string    `json:"id"`
	Ssid     string    `json:"ssid"`
	Security string    `json:"security"`
	State    string    `json:"state"`
	Code     int       `json:"code"`
	Message  string    `json:"message,omitempty"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
}

type getLastJoinResponse struct {
	Ssid         string    `json:"ssid"`
	Capabilities string    `json:"capabilities"`
	Outcome      string    `json:"outcome"`
	Time         time.Time `json:"time"`
}

// handlePostJoin blocks until the join reached its outcome.
func (a *Api) handlePostJoin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := postJoinRequest{}
		err := json.NewDecoder(r.Body).Decode(&req)
		if err != nil {
			a.jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}

		// the outcome is recorded as last join, so a client hanging up
		// must not cut the attempt short
		result, err := a.daemon.Join(context.WithoutCancel(r.Context()), &join.Request{
			Ssid:         req.Ssid,
			Capabilities: req.Capabilities,
			Credential:   req.Credential,
			Bssid:        req.Bssid,
		})
		switch {
		case errors.Is(err, join.ErrInvalidRequest):
			a.jsonError(w, err.Error(), http.StatusBadRequest)
			return
		case errors.Is(err, join.ErrUnsupportedSecurityKind):
			a.jsonError(w, err.Error(), http.StatusUnprocessableEntity)
			return
		case errors.Is(err, join.ErrJoinInProgress):
			a.jsonError(w, err.Error(), http.StatusConflict)
			return
		case err != nil:
			a.log.Errorf("Could not join %v: %v", req.Ssid, err)
			a.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}

		a.jsonResponse(w, &postJoinResponse{
			Id:       result.ID.String(),
			Ssid:     result.Ssid,
			Security: result.Security.String(),
			State:    result.State.String(),
			Code:     result.Code(),
			Message:  result.Message,
			Started:  result.Started,
			Finished: result.Finished,
		}, http.StatusOK)
	}
}

func (a *Api) handleGetLastJoin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		last, err := a.daemon.LastJoin()
		if err != nil {
			a.log.Errorf("Could not read last join: %v", err)
			a.jsonError(w, "Could not read last join", http.StatusInternalServerError)
			return
		}

		if last == nil {
			a.jsonError(w, "No network joined yet", http.StatusNotFound)
			return
		}

		a.jsonResponse(w, &getLastJoinResponse{
			Ssid:         last.Ssid,
			Capabilities: last.Capabilities,
			Outcome:      last.Outcome,
			Time:         last.Time,
		}, http.StatusOK)
	}
}

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/the-lightning-land/netmond/network"
)

type errorResponse struct {
	Error string `json:"error"`
}

type networkResponse struct {
	Transport string `json:"transport"`
	Connected bool   `json:"connected"`
	Subtype   int    `json:"subtype"`
	Extra     string `json:"extra"`
}

func (a *Api) jsonResponse(w http.ResponseWriter, v interface{}, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		a.log.Errorf("Could not respond with JSON: %v", err)
	}
}

func (a *Api) jsonError(w http.ResponseWriter, message string, code int) {
	a.jsonResponse(w, &errorResponse{Error: message}, code)
}

func networkOf(descriptor *network.Descriptor) *networkResponse {
	if descriptor.Transport() == network.None {
		return nil
	}

	return &networkResponse{
		Transport: descriptor.Transport().String(),
		Connected: descriptor.Connected(),
		Subtype:   descriptor.Subtype(),
		Extra:     descriptor.Extra(),
	}
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}

	return &t
}

package api

import (
	"net/http"
	"time"
)

const scanTimeout = 15 * time.Second

type wifiResponse struct {
	Ssid         string `json:"ssid"`
	Bssid        string `json:"bssid"`
	Capabilities string `json:"capabilities"`
	Signal       int16  `json:"signal"`
}

type getWifisResponse struct {
	Wifis []*wifiResponse `json:"wifis"`
}

// handleGetWifis scans and responds once the scan completed.
func (a *Api) handleGetWifis() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.scanner == nil {
			a.jsonError(w, "Scanning is not available", http.StatusNotImplemented)
			return
		}

		client, err := a.scanner.Scan()
		if err != nil {
			a.log.Errorf("Could not scan: %v", err)
			a.jsonError(w, "Could not scan", http.StatusInternalServerError)
			return
		}

		defer client.Cancel()

		timeout := time.NewTimer(scanTimeout)
		defer timeout.Stop()

		// Use literal instead of declaration so it serializes into empty json array
		res := &getWifisResponse{Wifis: []*wifiResponse{}}
		seen := map[string]bool{}

		for {
			select {
			case wifi, ok := <-client.Wifis:
				if !ok {
					a.jsonResponse(w, res, http.StatusOK)
					return
				}

				if seen[wifi.Bssid] {
					continue
				}

				seen[wifi.Bssid] = true

				res.Wifis = append(res.Wifis, &wifiResponse{
					Ssid:         wifi.Ssid,
					Bssid:        wifi.Bssid,
					Capabilities: wifi.Capabilities,
					Signal:       wifi.Signal,
				})
			case <-timeout.C:
				a.log.Warnf("Scan did not complete within %v", scanTimeout)
				a.jsonResponse(w, res, http.StatusOK)
				return
			case <-r.Context().Done():
				return
			}
		}
	}
}

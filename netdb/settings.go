package netdb

import (
	"time"
)

var lastJoinKey = []byte("lastJoin")

// LastJoin describes the most recent join. It holds no credential, a
// rejoin relies on the profile saved by the adapter.
type LastJoin struct {
	Ssid         string    `json:"ssid"`
	Capabilities string    `json:"capabilities"`
	Bssid        string    `json:"bssid,omitempty"`
	Outcome      string    `json:"outcome"`
	Time         time.Time `json:"time"`
}

// SetLastJoin stores the last join, nil clears it.
func (db *DB) SetLastJoin(join *LastJoin) error {
	return db.setJSON(settingsBucket, lastJoinKey, join)
}

// GetLastJoin returns the last join, nil when there was none.
func (db *DB) GetLastJoin() (*LastJoin, error) {
	join := &LastJoin{}

	found, err := db.getJSON(settingsBucket, lastJoinKey, join)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, nil
	}

	return join, nil
}

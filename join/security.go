package join

import (
	"strings"

	"github.com/the-lightning-land/netmond/network"
)

// ClassifySecurity derives the security kind from a capability string such
// as "[WPA2-PSK-CCMP][ESS]". The first marker found in the order EAP, PSK,
// WEP wins, since PSK networks may also advertise other schemes.
func ClassifySecurity(capabilities string) network.SecurityKind {
	c := strings.ToUpper(capabilities)

	switch {
	case strings.Contains(c, "EAP"):
		return network.Eap
	case strings.Contains(c, "PSK"):
		return network.Psk
	case strings.Contains(c, "WEP"):
		return network.Wep
	default:
		return network.Open
	}
}

// EncodeProfile builds the profile submitted to the adapter. Existing
// profiles keep their id, new ones are created as hidden profiles so that
// networks which do not broadcast their SSID can be joined as well.
func EncodeProfile(req *Request, security network.SecurityKind, existing *network.Profile) (*network.Profile, error) {
	if security == network.Eap {
		if existing == nil {
			return nil, ErrUnsupportedSecurityKind
		}

		// saved EAP profiles are only re-enabled
		profile := *existing
		return &profile, nil
	}

	profile := &network.Profile{
		Ssid:     network.Quote(req.Ssid),
		Bssid:    req.Bssid,
		Hidden:   true,
		Security: security,
	}

	if existing != nil {
		profile.Id = existing.Id
		profile.Hidden = existing.Hidden
	}

	if req.Credential == "" {
		return profile, nil
	}

	switch security {
	case network.Wep:
		profile.WepKey = encodeWepKey(req.Credential)
	case network.Psk:
		profile.Psk = encodePsk(req.Credential)
	}

	return profile, nil
}

func encodeWepKey(key string) string {
	switch len(key) {
	case 10, 26, 58:
		if isHex(key) {
			return key
		}
	}

	return network.QuoteLiteral(key)
}

func encodePsk(psk string) string {
	if len(psk) == 64 && isHex(psk) {
		return psk
	}

	return network.QuoteLiteral(psk)
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}

	return s != ""
}

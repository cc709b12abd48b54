package join

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/the-lightning-land/netmond/network"
)

func TestClassifySecurity(t *testing.T) {
	tests := []struct {
		capabilities string
		want         network.SecurityKind
	}{
		{"[WPA2-EAP-CCMP][ESS]", network.Eap},
		{"[WPA2-PSK-CCMP][ESS]", network.Psk},
		{"[WPA-PSK-TKIP][WPA2-PSK-CCMP][WPS][ESS]", network.Psk},
		{"[WPA2-EAP-CCMP][WPA2-PSK-CCMP][ESS]", network.Eap},
		{"[WEP][ESS]", network.Wep},
		{"[rsn-wpa-psk][ESS]", network.Psk},
		{"[ESS]", network.Open},
		{"", network.Open},
	}

	for _, tt := range tests {
		t.Run(tt.capabilities, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifySecurity(tt.capabilities))
		})
	}
}

func TestEncodeCredentials(t *testing.T) {
	hex26 := "0123456789abcdef0123456789"
	hex64 := strings.Repeat("a1", 32)

	tests := []struct {
		name       string
		security   network.SecurityKind
		credential string
		wepKey     string
		psk        string
	}{
		{"open", network.Open, "", "", ""},
		{"open ignores credential", network.Open, "secret", "", ""},
		{"wep hex 10", network.Wep, "0123456789", "0123456789", ""},
		{"wep hex 26", network.Wep, hex26, hex26, ""},
		{"wep hex 58", network.Wep, strings.Repeat("F", 58), strings.Repeat("F", 58), ""},
		{"wep literal", network.Wep, "hello", "\"hello\"", ""},
		{"wep hex of odd length", network.Wep, "0123456789a", "\"0123456789a\"", ""},
		{"wep non hex of length 26", network.Wep, "0123456789abcdef012345678z", "\"0123456789abcdef012345678z\"", ""},
		{"psk hex 64", network.Psk, hex64, "", hex64},
		{"psk passphrase", network.Psk, "correct horse", "", "\"correct horse\""},
		{"psk hex 63", network.Psk, hex64[:63], "", "\"" + hex64[:63] + "\""},
		{"psk passphrase in quotes", network.Psk, "\"secret\"", "", "\"\"secret\"\""},
		{"wep literal in quotes", network.Wep, "\"abcde\"", "\"\"abcde\"\"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile, err := EncodeProfile(&Request{Ssid: "home", Credential: tt.credential}, tt.security, nil)
			require.NoError(t, err)

			assert.Equal(t, "\"home\"", profile.Ssid)
			assert.Equal(t, tt.security, profile.Security)
			assert.Equal(t, tt.wepKey, profile.WepKey)
			assert.Equal(t, tt.psk, profile.Psk)
		})
	}
}

func TestEncodeProfile(t *testing.T) {
	t.Run("new profiles are hidden", func(t *testing.T) {
		profile, err := EncodeProfile(&Request{Ssid: "home", Bssid: "aa:bb:cc:dd:ee:ff"}, network.Open, nil)
		require.NoError(t, err)

		assert.Empty(t, profile.Id)
		assert.True(t, profile.Hidden)
		assert.Equal(t, "aa:bb:cc:dd:ee:ff", profile.Bssid)
	})

	t.Run("existing profiles keep their id", func(t *testing.T) {
		existing := &network.Profile{Id: "/net/3", Ssid: "\"home\"", Security: network.Psk}

		profile, err := EncodeProfile(&Request{Ssid: "home", Credential: "new passphrase"}, network.Psk, existing)
		require.NoError(t, err)

		assert.Equal(t, "/net/3", profile.Id)
		assert.False(t, profile.Hidden)
		assert.Equal(t, "\"new passphrase\"", profile.Psk)
	})

	t.Run("new eap profiles are unsupported", func(t *testing.T) {
		_, err := EncodeProfile(&Request{Ssid: "corp"}, network.Eap, nil)
		assert.Equal(t, ErrUnsupportedSecurityKind, err)
	})

	t.Run("existing eap profiles are kept as is", func(t *testing.T) {
		existing := &network.Profile{Id: "/net/7", Ssid: "\"corp\"", Security: network.Eap}

		profile, err := EncodeProfile(&Request{Ssid: "corp", Credential: "ignored"}, network.Eap, existing)
		require.NoError(t, err)

		assert.Equal(t, *existing, *profile)
		assert.NotSame(t, existing, profile)
	})
}

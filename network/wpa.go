package network

import (
	"encoding/hex"
	"strings"
	"sync"

	"github.com/go-errors/errors"
	"github.com/godbus/dbus/v5"
	"github.com/the-lightning-land/netmond/network/wpa"
)

// check WpaAdapter compliance to its interfaces during compile time
var _ Adapter = (*WpaAdapter)(nil)
var _ AlternateJoiner = (*WpaAdapter)(nil)

// Disconnect reasons (IEEE 802.11) which point to rejected credentials.
const (
	reasonPrevAuthNotValid    = 2
	reasonHandshakeTimeout    = 15
	reasonIEEE8021XAuthFailed = 23
)

type WpaConfig struct {
	Interface string
	Logger    Logger
}

// WpaAdapter controls a wireless interface through wpa_supplicant.
type WpaAdapter struct {
	log    Logger
	wpa    *wpa.Wpa
	ifname string
	iface  *wpa.Interface

	// replaced in tests
	selectNetwork func(id string) error
}

type AccessPoint struct {
	Ssid         string
	Bssid        string
	Capabilities string
	Signal       int16
}

type ScanClient struct {
	Wifis  <-chan *AccessPoint
	Cancel func()
}

func NewWpaAdapter(config *WpaConfig) *WpaAdapter {
	adapter := &WpaAdapter{
		ifname: config.Interface,
		wpa:    wpa.New(),
	}

	adapter.selectNetwork = func(id string) error {
		return adapter.iface.SelectNetwork(adapter.iface.Network(dbus.ObjectPath(id)))
	}

	if config.Logger != nil {
		adapter.log = config.Logger
	} else {
		adapter.log = noopLogger{}
	}

	return adapter
}

func (a *WpaAdapter) Start() error {
	err := a.wpa.Start()
	if err != nil {
		return errors.Errorf("could not start wpa: %v", err)
	}

	iface, err := a.wpa.GetInterface(a.ifname)
	if err != nil {
		_ = a.Stop()
		return errors.Errorf("could not find interface %v: %v", a.ifname, err)
	}

	a.iface = iface

	return nil
}

func (a *WpaAdapter) Stop() error {
	err := a.wpa.Stop()
	if err != nil {
		return errors.Errorf("could not stop wpa: %v", err)
	}

	return nil
}

func (a *WpaAdapter) ListProfiles() ([]*Profile, error) {
	networks, err := a.iface.Networks()
	if err != nil {
		return nil, errors.Errorf("could not list networks: %v", err)
	}

	var profiles []*Profile

	for _, net := range networks {
		props, err := net.Properties()
		if err != nil {
			a.log.Warnf("Skipping network %v: %v", net, err)
			continue
		}

		profiles = append(profiles, &Profile{
			Id:       string(net.Path()),
			Ssid:     props["ssid"],
			Bssid:    props["bssid"],
			Hidden:   props["scan_ssid"] == "1",
			Security: securityOfConfig(props),
		})
	}

	return profiles, nil
}

func (a *WpaAdapter) AddOrUpdateProfile(profile *Profile) (string, error) {
	args := profileArgs(profile)

	if profile.Id == "" {
		net, err := a.iface.AddNetwork(args)
		if err != nil {
			return "", errors.Errorf("could not add network %v: %v", profile.Ssid, err)
		}

		a.log.Debugf("Added network %v for %v", net, profile.Ssid)

		return string(net.Path()), nil
	}

	err := a.iface.Network(dbus.ObjectPath(profile.Id)).SetProperties(args)
	if err != nil {
		return "", errors.Errorf("could not update network %v: %v", profile.Ssid, err)
	}

	return profile.Id, nil
}

// EnableProfile selects the profile. Enabling alone would leave an
// established association to another network in place.
func (a *WpaAdapter) EnableProfile(id string) error {
	err := a.selectNetwork(id)
	if err != nil {
		return errors.Errorf("could not select network %v: %v", id, err)
	}

	return nil
}

func (a *WpaAdapter) RemoveProfile(id string) error {
	return a.iface.RemoveNetwork(a.iface.Network(dbus.ObjectPath(id)))
}

func (a *WpaAdapter) Reconnect() error {
	return a.iface.Reconnect()
}

func (a *WpaAdapter) Disconnect() error {
	return a.iface.Disconnect()
}

// JoinProfile writes the profile and selects it, which disables all other
// networks of the interface.
func (a *WpaAdapter) JoinProfile(profile *Profile) error {
	id, err := a.AddOrUpdateProfile(profile)
	if err != nil {
		return err
	}

	return a.selectNetwork(id)
}

func (a *WpaAdapter) CurrentIdentity() (string, error) {
	state, err := a.iface.State()
	if err != nil {
		return "", err
	}

	if state != "completed" {
		return "", nil
	}

	return a.currentSsid()
}

func (a *WpaAdapter) currentSsid() (string, error) {
	bss, err := a.iface.CurrentBSS()
	if err != nil {
		return "", err
	}

	if bss == nil {
		return "", nil
	}

	props, err := bss.GetAll()
	if err != nil {
		return "", err
	}

	return Quote(props.Ssid), nil
}

func (a *WpaAdapter) SubscribeAssociation() (*AssociationClient, error) {
	prevState, err := a.iface.State()
	if err != nil {
		return nil, errors.Errorf("could not get initial state: %v", err)
	}

	changes, err := a.iface.PropertiesChanged()
	if err != nil {
		return nil, errors.Errorf("could not listen to property changes: %v", err)
	}

	results := make(chan *AssociationResult)
	done := make(chan struct{})

	var once sync.Once

	identity, _ := a.currentSsid()

	go func() {
		defer close(results)

		for {
			select {
			case props, ok := <-changes.Changes:
				if !ok {
					return
				}

				val, ok := props["State"]
				if !ok {
					continue
				}

				state, ok := val.Value().(string)
				if !ok {
					continue
				}

				var reason int32
				if val, ok := props["DisconnectReason"]; ok {
					reason, _ = val.Value().(int32)
				}

				if ssid, err := a.currentSsid(); err == nil && ssid != "" {
					identity = ssid
				}

				result := &AssociationResult{
					State:    associationState(state),
					Identity: identity,
				}

				if result.State == AssociationDisconnected && rejectedCredentials(prevState, reason) {
					result.ErrorCode = ErrorAuthenticating
				}

				a.log.Debugf("Supplicant state %v -> %v (reason %v, identity %v)", prevState, state, reason, identity)

				prevState = state

				select {
				case results <- result:
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()

	return &AssociationClient{
		Results: results,
		Cancel: func() {
			once.Do(func() {
				changes.Cancel()
				close(done)
			})
		},
	}, nil
}

// Scan triggers an active scan and delivers the known and newly found
// access points until the scan completes or the client is cancelled.
func (a *WpaAdapter) Scan() (*ScanClient, error) {
	added, err := a.iface.BSSAdded()
	if err != nil {
		return nil, errors.Errorf("unable to listen for added wifis: %v", err)
	}

	scanDone, err := a.iface.ScanDone()
	if err != nil {
		added.Cancel()
		return nil, errors.Errorf("unable to listen to scan completion: %v", err)
	}

	done := make(chan struct{})

	var once sync.Once

	cancel := func() {
		once.Do(func() {
			added.Cancel()
			scanDone.Cancel()
			close(done)
		})
	}

	err = a.iface.Scan()
	if err != nil {
		cancel()
		return nil, errors.Errorf("unable to scan: %v", err)
	}

	bsss, err := a.iface.BSSs()
	if err != nil {
		cancel()
		return nil, errors.Errorf("unable to get BSSs: %v", err)
	}

	wifisChan := make(chan *AccessPoint)

	go func() {
		defer close(wifisChan)

		send := func(wifi *AccessPoint) bool {
			select {
			case wifisChan <- wifi:
				return true
			case <-done:
				return false
			}
		}

		for _, bss := range bsss {
			if wifi := a.wifi(bss); wifi != nil && !send(wifi) {
				return
			}
		}

		for {
			select {
			case bss, ok := <-added.BSSAdded:
				if !ok {
					return
				}

				if wifi := a.wifi(bss); wifi != nil && !send(wifi) {
					return
				}
			case <-scanDone.ScanDone:
				cancel()
				return
			case <-done:
				return
			}
		}
	}()

	return &ScanClient{
		Wifis:  wifisChan,
		Cancel: cancel,
	}, nil
}

func (a *WpaAdapter) wifi(bss *wpa.BSS) *AccessPoint {
	b, err := bss.GetAll()
	if err != nil {
		a.log.Debugf("Skipping bss %v: %v", bss, err)
		return nil
	}

	return &AccessPoint{
		Ssid:         b.Ssid,
		Bssid:        b.Bssid,
		Capabilities: b.Capabilities,
		Signal:       b.Signal,
	}
}

func associationState(state string) AssociationState {
	switch state {
	case "scanning":
		return AssociationScanning
	case "authenticating", "associating", "associated":
		return AssociationAssociating
	case "4way_handshake", "group_handshake":
		return AssociationAuthenticating
	case "completed":
		return AssociationCompleted
	case "disconnected":
		return AssociationDisconnected
	case "inactive", "interface_disabled":
		return AssociationInactive
	default:
		return AssociationUnknown
	}
}

func rejectedCredentials(prevState string, reason int32) bool {
	if prevState == "4way_handshake" || prevState == "group_handshake" {
		return true
	}

	switch reason {
	case reasonPrevAuthNotValid, reasonHandshakeTimeout, reasonIEEE8021XAuthFailed,
		-reasonPrevAuthNotValid, -reasonHandshakeTimeout, -reasonIEEE8021XAuthFailed:
		return true
	default:
		return false
	}
}

func securityOfConfig(props map[string]string) SecurityKind {
	keyMgmt := strings.ToUpper(props["key_mgmt"])

	switch {
	case strings.Contains(keyMgmt, "EAP") || strings.Contains(keyMgmt, "IEEE8021X"):
		return Eap
	case strings.Contains(keyMgmt, "PSK"):
		return Psk
	case strings.Contains(strings.ToUpper(props["auth_alg"]), "SHARED") || props["wep_key0"] != "":
		return Wep
	default:
		return Open
	}
}

func profileArgs(profile *Profile) map[string]interface{} {
	args := map[string]interface{}{
		"ssid": Unquote(profile.Ssid),
	}

	if profile.Hidden {
		args["scan_ssid"] = int32(1)
	}

	if profile.Bssid != "" {
		args["bssid"] = colonHex(profile.Bssid)
	}

	switch profile.Security {
	case Open:
		args["key_mgmt"] = "NONE"
	case Wep:
		args["key_mgmt"] = "NONE"
		args["auth_alg"] = "OPEN SHARED"
		if profile.WepKey != "" {
			args["wep_key0"] = credentialValue(profile.WepKey)
			args["wep_tx_keyidx"] = int32(0)
		}
	case Psk:
		args["key_mgmt"] = "WPA-PSK"
		if profile.Psk != "" {
			args["psk"] = credentialValue(profile.Psk)
		}
	case Eap:
		args["key_mgmt"] = "WPA-EAP IEEE8021X"
	}

	return args
}

// credentialValue maps quoted literals to strings, which wpa_supplicant
// quotes itself, and raw hex to byte arrays, which it stores unquoted.
func credentialValue(value string) interface{} {
	if IsQuoted(value) {
		return Unquote(value)
	}

	raw, err := hex.DecodeString(value)
	if err != nil {
		return value
	}

	return raw
}

func colonHex(bssid string) string {
	if strings.Contains(bssid, ":") || len(bssid) != 12 {
		return bssid
	}

	var parts []string
	for i := 0; i < len(bssid); i += 2 {
		parts = append(parts, bssid[i:i+2])
	}

	return strings.Join(parts, ":")
}

package network

import "strings"

// SecurityKind is the security scheme of a wireless network.
type SecurityKind int

const (
	Open SecurityKind = iota
	Wep
	Psk
	Eap
)

func (k SecurityKind) String() string {
	switch k {
	case Open:
		return "OPEN"
	case Wep:
		return "WEP"
	case Psk:
		return "PSK"
	case Eap:
		return "EAP"
	default:
		return "INVALID SECURITY"
	}
}

// Profile is a saved or newly created configuration record of a wireless network.
type Profile struct {
	// Id is the adapter's reference of a saved profile, empty for new ones.
	Id string
	// Ssid in quoted form, as the adapter stores it.
	Ssid     string
	Bssid    string
	Hidden   bool
	Security SecurityKind
	// WepKey and Psk are either raw hex or quoted literals, empty when not set.
	WepKey string
	Psk    string
}

// AssociationState is the progress of the adapter joining an access point.
type AssociationState int

const (
	AssociationUnknown AssociationState = iota
	AssociationScanning
	AssociationAssociating
	AssociationAuthenticating
	AssociationCompleted
	AssociationDisconnected
	AssociationInactive
)

func (s AssociationState) String() string {
	switch s {
	case AssociationScanning:
		return "SCANNING"
	case AssociationAssociating:
		return "ASSOCIATING"
	case AssociationAuthenticating:
		return "AUTHENTICATING"
	case AssociationCompleted:
		return "COMPLETED"
	case AssociationDisconnected:
		return "DISCONNECTED"
	case AssociationInactive:
		return "INACTIVE"
	default:
		return "UNKNOWN"
	}
}

// ErrorAuthenticating is the association error code for rejected credentials.
const ErrorAuthenticating = 1

// AssociationResult is a confirmation signal of the adapter.
type AssociationResult struct {
	State AssociationState
	// ErrorCode is zero when no error was reported.
	ErrorCode int
	// Identity is the quoted SSID the adapter is associated or associating with.
	Identity string
}

type AssociationClient struct {
	Results <-chan *AssociationResult
	Cancel  func()
}

// Adapter is the wireless adapter control service.
type Adapter interface {
	ListProfiles() ([]*Profile, error)
	// AddOrUpdateProfile creates the profile when it has no id and returns its id.
	AddOrUpdateProfile(*Profile) (string, error)
	// EnableProfile enables the profile and disables all others, so the
	// adapter switches over even while associated elsewhere.
	EnableProfile(id string) error
	RemoveProfile(id string) error
	Reconnect() error
	Disconnect() error
	SubscribeAssociation() (*AssociationClient, error)
	// CurrentIdentity returns the quoted SSID of the current association or "".
	CurrentIdentity() (string, error)
}

// AlternateJoiner is an optional second way of joining a network that
// bypasses add/update/enable.
type AlternateJoiner interface {
	JoinProfile(*Profile) error
}

// Quote converts an SSID to the quoted literal form, quoted SSIDs are
// returned as they are.
func Quote(s string) string {
	if IsQuoted(s) {
		return s
	}
	return QuoteLiteral(s)
}

// QuoteLiteral always wraps s in quotes. Credentials may start and end with
// a quote themselves and are quoted with it.
func QuoteLiteral(s string) string {
	return "\"" + s + "\""
}

func IsQuoted(s string) bool {
	return len(s) >= 2 && strings.HasPrefix(s, "\"") && strings.HasSuffix(s, "\"")
}

// Unquote strips the quotes of a quoted literal.
func Unquote(s string) string {
	if IsQuoted(s) {
		return s[1 : len(s)-1]
	}
	return s
}

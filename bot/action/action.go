// Package action turns raw callback payloads into a closed set of bot
// actions. Parsing happens once at the transport boundary; everything
// downstream switches on Kind exhaustively instead of comparing strings.
package action

import (
	"encoding/json"
	"strings"
)

// Kind enumerates every action a callback button can carry.
type Kind int

const (
	// Acknowledge is the catch-all for unknown payloads; the callback is
	// answered and nothing else happens.
	Acknowledge Kind = iota
	// Compose is the "begin composing" button from the greeting message.
	Compose
	AdminMenu
	ViewSettings
	ToggleAutoPost
	ChangeChannel
	ManageAdmins
	Blacklist
	Approve
	Reject
)

// String returns the wire name of the action kind.
func (k Kind) String() string {
	switch k {
	case Compose:
		return "send_confession"
	case AdminMenu:
		return "admin_menu"
	case ViewSettings:
		return "view_settings"
	case ToggleAutoPost:
		return "toggle_autopost"
	case ChangeChannel:
		return "change_channel"
	case ManageAdmins:
		return "manage_admins"
	case Blacklist:
		return "blacklist"
	case Approve:
		return "approve"
	case Reject:
		return "reject"
	default:
		return "acknowledge"
	}
}

// Action is one parsed callback payload. ConfID is set only for moderation
// decisions; Raw preserves the original payload for logging.
type Action struct {
	Kind   Kind
	ConfID int64
	Raw    string
}

// payload is the JSON wire form: {"action":"approve","id":12}.
type payload struct {
	Action string `json:"action"`
	ID     int64  `json:"id,omitempty"`
}

// Parse classifies raw callback data. JSON payloads carry an action name and
// an optional confession number; anything that fails to parse degrades to a
// raw-string action so legacy plain-text buttons keep working.
func Parse(data string) Action {
	raw := strings.TrimSpace(data)
	act := Action{Kind: Acknowledge, Raw: raw}
	if raw == "" {
		return act
	}

	name := raw
	if strings.HasPrefix(raw, "{") {
		var p payload
		if err := json.Unmarshal([]byte(raw), &p); err == nil && p.Action != "" {
			name = p.Action
			act.ConfID = p.ID
		}
	}

	act.Kind = kindByName(name)
	return act
}

func kindByName(name string) Kind {
	switch name {
	case "send_confession":
		return Compose
	case "admin_menu":
		return AdminMenu
	case "view_settings":
		return ViewSettings
	case "toggle_autopost":
		return ToggleAutoPost
	case "change_channel":
		return ChangeChannel
	case "manage_admins":
		return ManageAdmins
	case "blacklist":
		return Blacklist
	case "approve":
		return Approve
	case "reject":
		return Reject
	default:
		return Acknowledge
	}
}

// IsAdminOnly reports whether the action requires admin membership.
func (a Action) IsAdminOnly() bool {
	switch a.Kind {
	case AdminMenu, ViewSettings, ToggleAutoPost, ChangeChannel, ManageAdmins, Blacklist, Approve, Reject:
		return true
	}
	return false
}

// Marshal renders the callback data for an action without a confession id.
func Marshal(k Kind) string {
	b, _ := json.Marshal(payload{Action: k.String()})
	return string(b)
}

// MarshalConf renders the callback data for a moderation decision button.
func MarshalConf(k Kind, confID int64) string {
	b, _ := json.Marshal(payload{Action: k.String(), ID: confID})
	return string(b)
}

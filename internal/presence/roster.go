package presence

import "encoding/json"

// Roster is the member summary included in a presence channel's
// subscription_succeeded payload. Membership is tracked per socket, but the
// roster de-duplicates by user id: one user holding several sockets appears
// once, and count is the number of distinct users.
type Roster struct {
	IDs   []string                   `json:"ids"`
	Hash  map[string]json.RawMessage `json:"hash"`
	Count int                        `json:"count"`
}

// BuildRoster folds per-socket members into a user-keyed roster. Insertion
// order of first appearance is preserved in IDs; for a user with several
// sockets the most recent user_info wins.
func BuildRoster(members []Member) Roster {
	roster := Roster{
		IDs:  make([]string, 0, len(members)),
		Hash: make(map[string]json.RawMessage, len(members)),
	}
	for _, m := range members {
		if _, seen := roster.Hash[m.UserID]; !seen {
			roster.IDs = append(roster.IDs, m.UserID)
		}
		info := m.UserInfo
		if len(info) == 0 {
			info = json.RawMessage(`null`)
		}
		roster.Hash[m.UserID] = info
	}
	roster.Count = len(roster.IDs)
	return roster
}

// Contains reports whether any member carries the given user id.
func Contains(members []Member, userID string) bool {
	for _, m := range members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

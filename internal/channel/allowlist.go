package channel

import "strings"

// AllowList decides which senders a channel accepts. An empty list allows
// everyone.
type AllowList struct {
	ids map[string]bool
}

// NewAllowList builds an allow-list from a channel's own entries, falling
// back to the global entries when the channel has none.
func NewAllowList(channel, global []string) AllowList {
	src := channel
	if len(compact(src)) == 0 {
		src = global
	}
	ids := compact(src)
	if len(ids) == 0 {
		return AllowList{}
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return AllowList{ids: set}
}

// Allowed reports whether any of the sender's identifiers (phone number,
// uuid, user id, username) is on the list.
func (a AllowList) Allowed(ids ...string) bool {
	if len(a.ids) == 0 {
		return true
	}
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" && a.ids[id] {
			return true
		}
	}
	return false
}

// Len returns the number of entries; 0 means everyone is allowed.
func (a AllowList) Len() int { return len(a.ids) }

func compact(list []string) []string {
	var out []string
	for _, s := range list {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

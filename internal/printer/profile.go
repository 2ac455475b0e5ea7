package printer

import (
	"fmt"
	"sort"
	"strings"
)

// Profile describes the capabilities of a printer model.
type Profile struct {
	Name          string
	DotWidth      int // printable dots per line
	Columns       int // characters per line in font A
	FeedBeforeCut int // blank lines fed so the last line clears the cutter
}

var profiles = map[string]Profile{
	"default":  {Name: "default", DotWidth: 512, Columns: 42, FeedBeforeCut: 6},
	"TM-T88IV": {Name: "TM-T88IV", DotWidth: 512, Columns: 42, FeedBeforeCut: 6},
	"TM-T88V":  {Name: "TM-T88V", DotWidth: 512, Columns: 42, FeedBeforeCut: 6},
	"TM-T20II": {Name: "TM-T20II", DotWidth: 576, Columns: 48, FeedBeforeCut: 5},
	"TM-U220":  {Name: "TM-U220", DotWidth: 200, Columns: 33, FeedBeforeCut: 4},
}

// LookupProfile returns the named profile. Names are matched
// case-insensitively.
func LookupProfile(name string) (Profile, error) {
	if p, ok := profiles[name]; ok {
		return p, nil
	}
	for key, p := range profiles {
		if strings.EqualFold(key, name) {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("unknown printer profile %q (known: %s)", name, strings.Join(ProfileNames(), ", "))
}

// ProfileNames lists the known profiles in sorted order.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

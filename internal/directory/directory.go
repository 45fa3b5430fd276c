// Package directory keeps the admin view of the account directory in sync
// with the server. The client never maintains incremental state: every
// mutation triggers a full refetch, and the snapshot held here is simply the
// result of the last fetch that completed.
package directory

import (
	"sort"
	"time"

	"github.com/acctl/acctl/internal/api"
)

// UserRecord is one account as shown in the directory table.
type UserRecord struct {
	Name         string    `json:"name"`
	IsAdmin      bool      `json:"admin"`
	LastChanged  time.Time `json:"lastchanged"`
	IsValid      bool      `json:"valid"`
	IsSupported  bool      `json:"supported"`
	FormatID     string    `json:"formatid"`
	FormatParams string    `json:"formatparams"`
}

// RoleLabel returns the role name shown in the table.
func (u UserRecord) RoleLabel() string {
	if u.IsAdmin {
		return "Admin"
	}
	return "User"
}

// Snapshot is a point-in-time copy of the directory, sorted by username.
// Snapshots are immutable once built; a re-sync replaces the whole thing.
type Snapshot struct {
	Users     []UserRecord
	FetchedAt time.Time
}

// Lookup finds a record by username in the snapshot.
func (s Snapshot) Lookup(name string) (UserRecord, bool) {
	for _, u := range s.Users {
		if u.Name == name {
			return u, true
		}
	}
	return UserRecord{}, false
}

func snapshotFromList(list map[string]api.UserInfo, fetchedAt time.Time) Snapshot {
	users := make([]UserRecord, 0, len(list))
	for name, info := range list {
		users = append(users, UserRecord{
			Name:         name,
			IsAdmin:      info.IsAdmin,
			LastChanged:  info.LastChanged,
			IsValid:      info.IsValid,
			IsSupported:  info.IsSupported,
			FormatID:     info.FormatID,
			FormatParams: info.FormatParams,
		})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return Snapshot{Users: users, FetchedAt: fetchedAt}
}

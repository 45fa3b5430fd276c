package directory

import (
	"fmt"
	"io"
	"time"
)

// Render writes the snapshot as a plain-text table, one row per account.
func (s Snapshot) Render(w io.Writer) {
	if len(s.Users) == 0 {
		fmt.Fprintln(w, "No users in the directory.")
		return
	}

	fmt.Fprintf(w, "%-20s %-6s %-20s %-6s %-10s %s\n", "USER", "ROLE", "LAST CHANGED", "VALID", "SUPPORTED", "FORMAT")
	fmt.Fprintf(w, "%-20s %-6s %-20s %-6s %-10s %s\n", "----", "----", "------------", "-----", "---------", "------")
	for _, u := range s.Users {
		fmt.Fprintf(w, "%-20s %-6s %-20s %-6s %-10s %s\n",
			u.Name,
			u.RoleLabel(),
			FormatTimestamp(u.LastChanged),
			yesNo(u.IsValid),
			yesNo(u.IsSupported),
			formatDescriptor(u.FormatID, u.FormatParams),
		)
	}
}

// FormatTimestamp renders a password-change timestamp the way the table
// shows it: dd.mm.yyyy HH:MM:SS in local time.
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("02.01.2006 15:04:05")
}

func yesNo(flag bool) string {
	if flag {
		return "yes"
	}
	return "no"
}

func formatDescriptor(id, params string) string {
	if id == "" {
		return "-"
	}
	if params == "" {
		return id
	}
	return fmt.Sprintf("%s (%s)", id, params)
}

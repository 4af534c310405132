package model

// Mod status values
const (
	StatusPending   = "pending"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// ValidStatus reports whether s is a known status value
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusPublished, StatusArchived:
		return true
	}
	return false
}

package auth

import (
	"strings"

	"github.com/google/uuid"
)

// GuestPrefix marks user IDs that belong to unauthenticated visitors
const GuestPrefix = "guest_"

// GuestUserID turns a client-supplied guest identifier into a user ID.
// Only UUIDs are accepted so guests cannot collide with account subjects.
func GuestUserID(raw string) (string, bool) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), GuestPrefix)
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", false
	}
	return GuestPrefix + id.String(), true
}

// NewGuestID returns a fresh guest identifier
func NewGuestID() string {
	return GuestPrefix + uuid.NewString()
}

// IsGuest reports whether userID was issued to a guest
func IsGuest(userID string) bool {
	return strings.HasPrefix(userID, GuestPrefix)
}

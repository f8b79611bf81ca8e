package domain

import "time"

// Member represents user's participation meta for a class session.
// No transport or lifecycle logic here.
type Member struct {
	User     *User
	JoinedAt time.Time
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(user *User, joinedAt time.Time) *Member {
	return &Member{User: user, JoinedAt: joinedAt}
}

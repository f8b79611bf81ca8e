package domain

import "time"

type BookingID string

// Participant is a pre-assigned party of a booking.
type Participant struct {
	UserID     UserID `json:"userId" db:"user_id"`
	Name       string `json:"name" db:"name"`
	Role       Role   `json:"role" db:"role"`
	ProfileRef string `json:"profileRef,omitempty" db:"profile_ref"`
}

type Booking struct {
	ID           BookingID     `json:"id"`
	Subject      string        `json:"subject,omitempty"`
	StartsAt     time.Time     `json:"startsAt"`
	Participants []Participant `json:"participants"`
}

// Has reports whether uid is assigned to the booking.
func (b *Booking) Has(uid UserID) bool {
	_, ok := b.participant(uid)
	return ok
}

// Counterpart returns the first participant that is not uid.
func (b *Booking) Counterpart(uid UserID) (Participant, bool) {
	for _, p := range b.Participants {
		if p.UserID != uid {
			return p, true
		}
	}
	return Participant{}, false
}

func (b *Booking) participant(uid UserID) (Participant, bool) {
	for _, p := range b.Participants {
		if p.UserID == uid {
			return p, true
		}
	}
	return Participant{}, false
}

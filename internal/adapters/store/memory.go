package store

import (
	"context"
	"sync"

	"github.com/dkeye/LiveClass/internal/config"
	"github.com/dkeye/LiveClass/internal/domain"
)

// MemoryBookings is an in-memory directory, seeded from config in dev.
type MemoryBookings struct {
	mu       sync.RWMutex
	bookings map[domain.BookingID]*domain.Booking
}

func NewMemoryBookings() *MemoryBookings {
	return &MemoryBookings{bookings: make(map[domain.BookingID]*domain.Booking)}
}

// FromSeeds builds a directory from the bookings section of the config.
// Seeds with an unknown role are skipped participant by participant.
func FromSeeds(seeds []config.BookingSeed) *MemoryBookings {
	m := NewMemoryBookings()
	for _, s := range seeds {
		b := &domain.Booking{ID: domain.BookingID(s.ID), Subject: s.Subject}
		for _, p := range s.Participants {
			role, err := domain.ParseRole(p.Role)
			if err != nil {
				continue
			}
			b.Participants = append(b.Participants, domain.Participant{
				UserID: domain.UserID(p.UserID),
				Name:   p.Name,
				Role:   role,
			})
		}
		m.Put(b)
	}
	return m
}

func (m *MemoryBookings) Put(b *domain.Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[b.ID] = b
}

func (m *MemoryBookings) Booking(_ context.Context, id domain.BookingID) (*domain.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	cp := *b
	cp.Participants = append([]domain.Participant(nil), b.Participants...)
	return &cp, nil
}

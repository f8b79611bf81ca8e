package bookingapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dkeye/LiveClass/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer good" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			h(w, r)
		}
	}
	mux.HandleFunc("/api/me", authed(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(domain.User{ID: "t1", Username: "Ms. Ada", Role: domain.RoleTeacher})
	}))
	mux.HandleFunc("/api/bookings/sess-42", authed(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(domain.Booking{ID: "sess-42", Participants: []domain.Participant{
			{UserID: "t1", Name: "Ms. Ada", Role: domain.RoleTeacher},
			{UserID: "s1", Name: "Bob", Role: domain.RoleStudent},
		}})
	}))
	mux.HandleFunc("/api/bookings/locked", authed(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	mux.HandleFunc("/api/bookings/broken", authed(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "db down", http.StatusInternalServerError)
	}))
	mux.HandleFunc("/api/ice", authed(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"iceServers":[{"urls":["stun:stun.example.org:3478"]},{"urls":["turn:turn.example.org:3478"],"username":"u","credential":"p"}]}`))
	}))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCurrentUser(t *testing.T) {
	srv := newServer(t)

	u, err := New(srv.URL+"/", "good", nil).CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("t1"), u.ID)
	assert.Equal(t, domain.RoleTeacher, u.Role)

	_, err = New(srv.URL, "bad", nil).CurrentUser(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestBooking(t *testing.T) {
	c := New(newServer(t).URL, "good", nil)

	b, err := c.Booking(context.Background(), "sess-42")
	require.NoError(t, err)
	p, ok := b.Counterpart("t1")
	require.True(t, ok)
	assert.Equal(t, "Bob", p.Name)

	_, err = c.Booking(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.Booking(context.Background(), "locked")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = c.Booking(context.Background(), "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestICEServers(t *testing.T) {
	servers, err := New(newServer(t).URL, "good", nil).ICEServers(context.Background())
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, []string{"turn:turn.example.org:3478"}, servers[1].URLs)
	assert.Equal(t, "p", servers[1].Credential)
}

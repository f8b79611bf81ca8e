package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/dkeye/LiveClass/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestIssueVerify(t *testing.T) {
	iss, err := NewIssuer("secret", time.Hour)
	require.NoError(t, err)

	u := &domain.User{ID: "t1", Username: "Ms. Ada", Role: domain.RoleTeacher}
	token, err := iss.Issue(u)
	require.NoError(t, err)

	got, err := iss.Verify(token)
	require.NoError(t, err)
	require.Equal(t, u, got)
}

func TestVerifyRejects(t *testing.T) {
	iss, err := NewIssuer("secret", time.Hour)
	require.NoError(t, err)
	other, err := NewIssuer("other", time.Hour)
	require.NoError(t, err)

	u := &domain.User{ID: "s1", Username: "bob", Role: domain.RoleStudent}
	foreign, err := other.Issue(u)
	require.NoError(t, err)

	iss.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := iss.Issue(u)
	require.NoError(t, err)
	iss.now = time.Now

	badRole, err := iss.Issue(&domain.User{ID: "x", Username: "x", Role: "janitor"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "lmaooolol"},
		{name: "wrong secret", token: foreign},
		{name: "expired", token: expired},
		{name: "unknown role", token: badRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := iss.Verify(tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestNewIssuerEmptySecret(t *testing.T) {
	_, err := NewIssuer("", time.Hour)
	require.ErrorIs(t, err, ErrEmptySecret)
}

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/LiveClass/internal/call/session"
	"github.com/dkeye/LiveClass/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeControls struct {
	mutes, videos, retries int
}

func (f *fakeControls) ToggleMute(context.Context)  { f.mutes++ }
func (f *fakeControls) ToggleVideo(context.Context) { f.videos++ }
func (f *fakeControls) Retry(context.Context) error { f.retries++; return nil }

func TestReadCommands(t *testing.T) {
	c := &fakeControls{}
	quit := make(chan struct{})
	readCommands(context.Background(), strings.NewReader("m\nv\n\nx\nm\nr\nq\nm\n"), c, quit)

	select {
	case <-quit:
	case <-time.After(time.Second):
		t.Fatal("quit not closed")
	}
	assert.Equal(t, 2, c.mutes)
	assert.Equal(t, 1, c.videos)
	assert.Equal(t, 1, c.retries)
}

func TestStateLoggerSkipsTicks(t *testing.T) {
	var buf bytes.Buffer
	lg := zerolog.New(&buf)
	fn := stateLogger(lg.Info)

	fn(session.CallState{Status: domain.StatusConnecting, CallDuration: "00:00:00"})
	fn(session.CallState{Status: domain.StatusConnecting, CallDuration: "00:00:01"})
	fn(session.CallState{
		Status:       domain.StatusConnecting,
		CallDuration: "00:00:02",
		Remote:       &domain.RemoteParticipant{Name: "Bob"},
	})
	fn(session.CallState{
		Status:       domain.StatusConnecting,
		CallDuration: "00:00:03",
		Remote:       &domain.RemoteParticipant{Name: "Bob"},
	})
	fn(session.CallState{Status: domain.StatusConnected, CallDuration: "00:00:04", Quality: domain.QualityExcellent})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], `"remote":"Bob"`)
	assert.Contains(t, lines[2], `"quality":"excellent"`)
}

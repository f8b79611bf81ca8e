package main

import (
	"github.com/dkeye/LiveClass/internal/call/session"
	"github.com/rs/zerolog"
)

// stateLogger logs a call state whenever something other than the
// duration counter changed.
func stateLogger(level func() *zerolog.Event) func(session.CallState) {
	var last session.CallState
	first := true
	return func(st session.CallState) {
		cmp := st
		cmp.CallDuration = last.CallDuration
		if !first && sameState(cmp, last) {
			last = st
			return
		}
		first = false
		last = st

		ev := level().
			Str("status", string(st.Status)).
			Str("quality", string(st.Quality)).
			Str("role", string(st.NegotiationRole)).
			Bool("signaling", st.SignalingConnected).
			Bool("muted", st.IsMuted).
			Bool("video_off", st.IsVideoOff).
			Str("duration", st.CallDuration)
		if st.Remote != nil {
			ev = ev.Str("remote", st.Remote.Name).Bool("remote_audio", st.Remote.IsAudioOn).Bool("remote_video", st.Remote.IsVideoOn)
		}
		if st.RemoteStream != nil {
			ev = ev.Int("remote_tracks", st.RemoteStream.Len())
		}
		if st.Err != "" {
			ev = ev.Str("error", st.Err)
		}
		ev.Msg("call state")
	}
}

func sameState(a, b session.CallState) bool {
	if a.Remote != nil && b.Remote != nil {
		if *a.Remote != *b.Remote {
			return false
		}
		a.Remote, b.Remote = nil, nil
	}
	return a == b
}

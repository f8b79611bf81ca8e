package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dkeye/LiveClass/internal/adapters/bookingapi"
	"github.com/dkeye/LiveClass/internal/adapters/devices"
	"github.com/dkeye/LiveClass/internal/adapters/rtc"
	"github.com/dkeye/LiveClass/internal/call/media"
	"github.com/dkeye/LiveClass/internal/call/session"
	"github.com/dkeye/LiveClass/internal/call/settings"
	"github.com/dkeye/LiveClass/internal/call/signaling"
	"github.com/dkeye/LiveClass/internal/config"
	"github.com/dkeye/LiveClass/internal/core"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type joinFlags struct {
	server      string
	sessionID   string
	token       string
	noAudio     bool
	noVideo     bool
	muted       bool
	videoOff    bool
	microphone  string
	camera      string
	quality     string
	duration    time.Duration
	interactive bool
}

var jf joinFlags

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join a lesson call and stay until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return join(cmd.Context(), jf)
	},
}

func init() {
	f := joinCmd.Flags()
	f.StringVar(&jf.server, "server", "http://localhost:8080", "LiveClass server base url")
	f.StringVar(&jf.sessionID, "session", "", "booking id of the lesson")
	f.StringVar(&jf.token, "token", os.Getenv("LIVECLASS_TOKEN"), "bearer token (defaults to $LIVECLASS_TOKEN)")
	f.BoolVar(&jf.noAudio, "no-audio", false, "do not capture a microphone")
	f.BoolVar(&jf.noVideo, "no-video", false, "do not capture a camera")
	f.BoolVar(&jf.muted, "muted", false, "join with the microphone muted")
	f.BoolVar(&jf.videoOff, "video-off", false, "join with the camera off")
	f.StringVar(&jf.microphone, "microphone", "", "microphone device id")
	f.StringVar(&jf.camera, "camera", "", "camera device id")
	f.StringVar(&jf.quality, "quality", string(settings.QualityHigh), "video quality: low, medium, high or hd")
	f.DurationVar(&jf.duration, "duration", 0, "leave after this long; zero stays until interrupted")
	f.BoolVar(&jf.interactive, "interactive", false, "read m/v/r/q commands from stdin")
	_ = joinCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(joinCmd)
}

func join(parent context.Context, f joinFlags) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	quality, err := settings.ParseVideoQuality(f.quality)
	if err != nil {
		return err
	}
	sid := core.SessionID(f.sessionID)
	logger := log.With().Str("module", "callagent").Str("sid", string(sid)).Logger()

	api := bookingapi.New(f.server, f.token, nil)
	ice, err := api.ICEServers(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("ICE servers unavailable, using configured ones")
		ice = cfg.ICE.Servers
	}

	codecs, err := codecSelector(quality)
	if err != nil {
		return err
	}
	rtcAPI, err := rtc.NewAPI(codecs)
	if err != nil {
		return err
	}

	src := devices.NewSource(codecs)
	panel := settings.NewPanel(src)
	if err := panel.Refresh(ctx); err != nil {
		logger.Warn().Err(err).Msg("device enumeration failed")
	}
	if err := applyPanel(panel, f, quality); err != nil {
		return err
	}

	sc := signaling.NewClient(signaling.Options{
		ServerURL:        f.server,
		Token:            f.token,
		ReconnectInitial: cfg.Call.ReconnectInitial,
		ReconnectMax:     cfg.Call.ReconnectMax,
		ReconnectElapsed: cfg.Call.ReconnectElapsed,
		// Same slack over the server ping period as the server's pong wait.
		ReadTimeout:      cfg.PingPeriod * 10 / 9,
	})

	call := session.New(session.Options{
		SessionID:          sid,
		PreferAudio:        !f.noAudio,
		PreferVideo:        !f.noVideo,
		NegotiationTimeout: cfg.Call.NegotiationTimeout,
		CandidateBuffer:    cfg.Call.CandidateBuffer,
	}, session.Deps{
		Identity: api,
		Bookings: api,
		Media:    media.NewManager(src),
		Signal:   sc,
		Peers:    rtc.Factory(rtcAPI, rtc.DefaultWebRTCConfig(ice), sid),
		Settings: panel,
	})
	defer call.Close()

	unsub := call.OnStateChange(stateLogger(logger.Info))
	defer unsub()

	if err := call.Start(ctx); err != nil {
		return fmt.Errorf("start call: %w", err)
	}

	var deadline <-chan time.Time
	if f.duration > 0 {
		timer := time.NewTimer(f.duration)
		defer timer.Stop()
		deadline = timer.C
	}
	quit := make(chan struct{})
	if f.interactive {
		go readCommands(ctx, os.Stdin, call, quit)
	}

	select {
	case <-ctx.Done():
		logger.Info().Msg("interrupted")
	case <-deadline:
		logger.Info().Dur("duration", f.duration).Msg("duration elapsed")
	case <-quit:
	}
	call.LeaveCall()
	st := call.State()
	logger.Info().Str("status", string(st.Status)).Str("duration", st.CallDuration).Msg("left call")
	return nil
}

func applyPanel(p *settings.Panel, f joinFlags, q settings.VideoQuality) error {
	if err := p.SelectMicrophone(f.microphone); err != nil {
		return err
	}
	if err := p.SelectCamera(f.camera); err != nil {
		return err
	}
	if err := p.SetVideoQuality(q); err != nil {
		return err
	}
	p.SetAutoJoinMuted(f.muted)
	p.SetAutoJoinVideoOff(f.videoOff)
	return nil
}

// callControls is the part of the call the stdin loop drives.
type callControls interface {
	ToggleMute(ctx context.Context)
	ToggleVideo(ctx context.Context)
	Retry(ctx context.Context) error
}

func readCommands(ctx context.Context, r io.Reader, call callControls, quit chan<- struct{}) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		switch strings.TrimSpace(sc.Text()) {
		case "m":
			call.ToggleMute(ctx)
		case "v":
			call.ToggleVideo(ctx)
		case "r":
			if err := call.Retry(ctx); err != nil {
				log.Warn().Err(err).Str("module", "callagent").Msg("retry")
			}
		case "q":
			close(quit)
			return
		case "":
		default:
			log.Warn().Str("module", "callagent").Str("input", sc.Text()).Msg("commands: m (mute) v (video) r (retry) q (quit)")
		}
	}
}

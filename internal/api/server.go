// Package api serves the Podium HTTP and websocket surface: scheduling
// meetings, driving the shared countdown, teleprompter scripts, nudges,
// reactions and the realtime event stream of each meeting room.
//
// A [Server] keeps one room per meeting that has been touched since start.
// The room owns the meeting's countdown controller and teleprompter cursor;
// everything else is read from the [meeting.Store] on demand.
package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/podium/internal/config"
	"github.com/MrWong99/podium/internal/meeting"
	"github.com/MrWong99/podium/internal/observe"
	"github.com/MrWong99/podium/internal/realtime"
	"github.com/MrWong99/podium/internal/teleprompter"
	"github.com/MrWong99/podium/pkg/provider/stt"
)

// Config holds the dependencies of a [Server].
type Config struct {
	// Store persists meetings. Required.
	Store meeting.Store

	// Hub fans events out to meeting rooms. Required.
	Hub *realtime.Hub

	// Metrics records API activity. Defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Recognizer enables voice following on /script/listen. Nil disables it.
	Recognizer     stt.Provider
	RecognizerName string
	Stream         stt.StreamConfig

	Teleprompter config.TeleprompterConfig
	Countdown    config.CountdownConfig
	Realtime     config.RealtimeConfig

	// OriginPatterns are passed to websocket.Accept. Empty allows only
	// same-origin browser clients.
	OriginPatterns []string

	// Clock replaces time.Now. Used by tests.
	Clock func() time.Time
}

// Server implements the HTTP API. All methods are safe for concurrent use.
type Server struct {
	store      meeting.Store
	hub        *realtime.Hub
	metrics    *observe.Metrics
	recognizer stt.Provider
	recName    string
	stream     stt.StreamConfig
	client     realtime.ClientConfig
	origins    []string
	now        func() time.Time

	tuningMu     sync.RWMutex
	teleprompter config.TeleprompterConfig
	countdown    config.CountdownConfig
	aligner      *teleprompter.Aligner

	rooms *rooms
}

// New returns a [Server] for cfg.
func New(cfg Config) *Server {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.RecognizerName == "" {
		cfg.RecognizerName = "recognizer"
	}
	s := &Server{
		store:        cfg.Store,
		hub:          cfg.Hub,
		metrics:      cfg.Metrics,
		recognizer:   cfg.Recognizer,
		recName:      cfg.RecognizerName,
		stream:       cfg.Stream,
		client:       cfg.Realtime.ClientConfig(),
		origins:      cfg.OriginPatterns,
		now:          cfg.Clock,
		teleprompter: cfg.Teleprompter,
		countdown:    cfg.Countdown,
		aligner:      teleprompter.NewAligner(cfg.Teleprompter.AlignerOptions()...),
	}
	s.rooms = newRooms(s)
	return s
}

// Register adds the API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /meetings", s.createMeeting)
	mux.HandleFunc("GET /meetings", s.listMeetings)
	mux.HandleFunc("GET /meetings/{id}", s.getMeeting)
	mux.HandleFunc("GET /meetings/{id}/cost", s.meetingCost)
	mux.HandleFunc("GET /meetings/{id}/speakers/times", s.speakerTimes)

	mux.HandleFunc("GET /meetings/{id}/timer", s.timerState)
	mux.HandleFunc("POST /meetings/{id}/timer/{command}", s.timerCommand)
	mux.HandleFunc("POST /meetings/{id}/nudge", s.nudge)
	mux.HandleFunc("POST /meetings/{id}/reactions", s.react)
	mux.HandleFunc("GET /meetings/{id}/ws", s.subscribe)

	mux.HandleFunc("GET /meetings/{id}/script", s.getScript)
	mux.HandleFunc("PUT /meetings/{id}/script", s.putScript)
	mux.HandleFunc("POST /meetings/{id}/script/align", s.alignScript)
	mux.HandleFunc("POST /meetings/{id}/script/cursor", s.moveCursor)
	mux.HandleFunc("GET /meetings/{id}/script/listen", s.listen)
}

// Handler returns a mux with the API routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

// SetTeleprompter swaps the aligner and follower tuning. The server-side
// aligner changes immediately; cursors and followers pick it up when their
// room is next created.
func (s *Server) SetTeleprompter(tp config.TeleprompterConfig) {
	a := teleprompter.NewAligner(tp.AlignerOptions()...)
	s.tuningMu.Lock()
	s.teleprompter = tp
	s.aligner = a
	s.tuningMu.Unlock()
}

// SetCountdown swaps the synchronizer tuning for rooms created afterwards.
func (s *Server) SetCountdown(cd config.CountdownConfig) {
	s.tuningMu.Lock()
	s.countdown = cd
	s.tuningMu.Unlock()
}

// ActiveRooms returns the number of loaded meeting rooms.
func (s *Server) ActiveRooms() int {
	return s.rooms.len()
}

// Close stops every room's countdown and voice follower.
func (s *Server) Close() {
	s.rooms.closeAll()
}

func (s *Server) tuning() (config.TeleprompterConfig, config.CountdownConfig, *teleprompter.Aligner) {
	s.tuningMu.RLock()
	defer s.tuningMu.RUnlock()
	return s.teleprompter, s.countdown, s.aligner
}

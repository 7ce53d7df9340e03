package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/podium/internal/observe"
	"github.com/MrWong99/podium/internal/realtime"
	"github.com/MrWong99/podium/internal/teleprompter"
	"github.com/MrWong99/podium/pkg/audio"
)

// Cursor move sources recorded on [observe.Metrics.CursorAdvances].
const (
	sourceVoice  = "voice"
	sourceManual = "manual"
)

type scriptResponse struct {
	Words  []teleprompter.ScriptWord `json:"words"`
	Index  int                       `json:"index"`
	Status string                    `json:"status"`
}

func (s *Server) scriptView(rm *room) scriptResponse {
	status := teleprompter.StatusIdle
	if f := rm.activeFollower(); f != nil {
		status = f.Status()
	}
	return scriptResponse{Words: rm.cursor.Words(), Index: rm.cursor.Index(), Status: status}
}

func (s *Server) getScript(w http.ResponseWriter, r *http.Request) {
	rm, err := s.rooms.get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.scriptView(rm))
}

type scriptRequest struct {
	Text string `json:"text"`
}

// putScript replaces the script, rewinds the cursor and drops any buffered
// speech of a running follower.
func (s *Server) putScript(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req scriptRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	if err := s.store.UpdateScript(ctx, id, req.Text); err != nil {
		writeError(w, r, err)
		return
	}
	rm, err := s.rooms.get(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rm.publishMu.Lock()
	rm.cursor.Load(req.Text)
	if f := rm.activeFollower(); f != nil {
		f.ClearTranscript()
	}
	s.publish(ctx, id, realtime.CursorEvent(id, 0, 0))
	rm.publishMu.Unlock()

	observe.MeetingLogger(ctx, id).Info("api: script replaced", "words", rm.cursor.Len())
	writeJSON(w, http.StatusOK, s.scriptView(rm))
}

type alignRequest struct {
	Transcript string `json:"transcript"`
	Cursor     int    `json:"cursor"`
}

type alignResponse struct {
	Found bool `json:"found"`
	teleprompter.Match
}

// alignScript runs the aligner against the meeting's script for clients that
// do their own recognition. It proposes a position; the cursor is not moved.
func (s *Server) alignScript(w http.ResponseWriter, r *http.Request) {
	var req alignRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rm, err := s.rooms.get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	_, _, aligner := s.tuning()

	ctx, span := observe.StartMeetingSpan(r.Context(), "script.align", rm.id)
	start := time.Now()
	m, ok := aligner.FindBestMatch(strings.Fields(req.Transcript), rm.cursor.Words(), req.Cursor)
	s.metrics.AlignDuration.Record(ctx, time.Since(start).Seconds())
	span.SetAttributes(attribute.Bool("found", ok), attribute.Int("index", m.Index))
	span.End()

	writeJSON(w, http.StatusOK, alignResponse{Found: ok, Match: m})
}

type cursorRequest struct {
	Action string `json:"action"`
	Index  int    `json:"index,omitempty"`
}

type cursorResponse struct {
	Index int `json:"index"`
}

// moveCursor applies manual navigation: next, prev, reset or set.
func (s *Server) moveCursor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req cursorRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rm, err := s.rooms.get(ctx, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	rm.publishMu.Lock()
	var idx int
	switch req.Action {
	case "next":
		idx = rm.cursor.Next()
	case "prev":
		idx = rm.cursor.Prev()
	case "reset":
		rm.cursor.Reset()
	case "set":
		idx = rm.cursor.Set(req.Index)
	default:
		rm.publishMu.Unlock()
		writeError(w, r, fmt.Errorf("%w: unknown cursor action %q", errBadRequest, req.Action))
		return
	}
	s.publish(ctx, rm.id, realtime.CursorEvent(rm.id, idx, 0))
	rm.publishMu.Unlock()

	s.metrics.RecordCursorAdvance(ctx, sourceManual)
	writeJSON(w, http.StatusOK, cursorResponse{Index: idx})
}

// listen upgrades to a websocket that streams binary PCM frames to the
// speech recognizer. Recognized speech advances the meeting's cursor and
// every move is broadcast as a script_cursor event. One listener per meeting.
//
// Clients that capture in another format declare it with ?rate=48000&channels=2
// and the audio is converted to the recognizer's mono format.
func (s *Server) listen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.recognizer == nil {
		writeError(w, r, errNoRecognizer)
		return
	}
	conv, err := s.audioConverter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rm, err := s.rooms.get(ctx, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	tp, _, _ := s.tuning()
	f := teleprompter.NewFollower(teleprompter.FollowerConfig{
		Provider:     s.recognizer,
		Cursor:       rm.cursor,
		Stream:       s.stream,
		KeywordLimit: tp.KeywordLimit,
		KeywordBoost: tp.KeywordBoost,
		MaxRestarts:  tp.MaxRestarts,
		OnAdvance: func(m teleprompter.Match, index int) {
			s.metrics.RecordCursorAdvance(ctx, sourceVoice)
			s.publish(ctx, rm.id, realtime.CursorEvent(rm.id, index, m.Matches))
		},
		OnStatus: func(status string) {
			observe.MeetingLogger(ctx, rm.id).Info("api: voice follower status", "status", status)
		},
	})
	if err := rm.setFollower(f); err != nil {
		writeError(w, r, err)
		return
	}
	defer rm.clearFollower(f)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		observe.MeetingLogger(ctx, rm.id).Warn("api: websocket accept", "err", err)
		return
	}
	defer conn.CloseNow()

	if err := s.startFollower(ctx, f); err != nil {
		conn.Close(websocket.StatusInternalError, "recognizer unavailable")
		return
	}
	defer func() {
		if err := f.Stop(); err != nil {
			observe.MeetingLogger(ctx, rm.id).Debug("api: stop follower", "err", err)
		}
	}()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageBinary {
			continue
		}
		if conv != nil {
			if data, err = conv.Convert(data); err != nil {
				observe.MeetingLogger(ctx, rm.id).Debug("api: drop audio chunk", "err", err)
				continue
			}
		}
		if err := f.SendAudio(data); err != nil {
			if f.Status() == teleprompter.StatusStopped {
				conn.Close(websocket.StatusGoingAway, "voice following stopped")
				return
			}
			observe.MeetingLogger(ctx, rm.id).Debug("api: forward audio", "err", err)
		}
	}
}

// audioConverter builds the converter for the capture format declared in the
// query. Without a declaration audio is forwarded unchanged.
func (s *Server) audioConverter(r *http.Request) (*audio.Converter, error) {
	q := r.URL.Query()
	if !q.Has("rate") && !q.Has("channels") {
		return nil, nil
	}
	to := audio.Format{SampleRate: s.stream.SampleRate, Channels: 1}
	from := to
	for key, dst := range map[string]*int{"rate": &from.SampleRate, "channels": &from.Channels} {
		if !q.Has(key) {
			continue
		}
		n, err := strconv.Atoi(q.Get(key))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: %s must be a positive integer", errBadRequest, key)
		}
		*dst = n
	}
	switch {
	case to.SampleRate <= 0 && from.SampleRate <= 0:
		// Neither side names a rate; only the channel layout changes.
		from.SampleRate, to.SampleRate = 16000, 16000
	case to.SampleRate <= 0:
		to.SampleRate = from.SampleRate
	}
	conv, err := audio.NewConverter(from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if conv.Passthrough() {
		return nil, nil
	}
	return conv, nil
}

// startFollower opens the recognition session and records how long it took.
func (s *Server) startFollower(ctx context.Context, f *teleprompter.Follower) error {
	start := time.Now()
	err := f.Start(ctx)
	s.metrics.RecognizerOpenDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordProviderRequest(ctx, s.recName, "stt", "error")
		s.metrics.RecordProviderError(ctx, s.recName, "stt")
		observe.Logger(ctx).Warn("api: recognizer unavailable", "provider", s.recName, "err", err)
		return err
	}
	s.metrics.RecordProviderRequest(ctx, s.recName, "stt", "ok")
	return nil
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"

	"github.com/coder/websocket"

	"github.com/MrWong99/podium/internal/countdown"
	"github.com/MrWong99/podium/internal/observe"
	"github.com/MrWong99/podium/internal/realtime"
)

var timerCommands = []string{
	countdown.CommandPlay,
	countdown.CommandSkip,
	countdown.CommandBack,
	countdown.CommandReset,
	countdown.CommandFinish,
}

// timerState returns the host's authoritative snapshot. ?role=viewer returns
// the damped countdown a display following the room's events would show.
func (s *Server) timerState(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	if role != "" && role != "host" && role != "viewer" {
		writeError(w, r, fmt.Errorf("%w: unknown role %q", errBadRequest, role))
		return
	}
	rm, err := s.rooms.get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if role == "viewer" {
		writeJSON(w, http.StatusOK, rm.viewer.Snapshot())
		return
	}
	writeJSON(w, http.StatusOK, rm.ctrl.Snapshot())
}

// timerCommand applies play, skip, back, reset or finish and broadcasts the
// resulting snapshot. Finish also announces the end of the meeting.
func (s *Server) timerCommand(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	command := r.PathValue("command")
	if !slices.Contains(timerCommands, command) {
		writeError(w, r, fmt.Errorf("%w: unknown timer command %q", errBadRequest, command))
		return
	}
	rm, err := s.rooms.get(ctx, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx, span := observe.StartMeetingSpan(ctx, "timer."+command, rm.id)
	defer span.End()

	rm.publishMu.Lock()
	st, err := rm.ctrl.Do(ctx, command)
	if err != nil {
		rm.publishMu.Unlock()
		span.RecordError(err)
		s.metrics.RecordTimerCommand(ctx, command, "error")
		writeError(w, r, err)
		return
	}
	s.publish(ctx, rm.id, realtime.TimerStateEvent(rm.id, st))
	if command == countdown.CommandFinish {
		s.publish(ctx, rm.id, realtime.FinishedEvent(rm.id))
	}
	rm.publishMu.Unlock()

	s.metrics.RecordTimerCommand(ctx, command, "ok")
	observe.MeetingLogger(ctx, rm.id).Info("api: timer command applied",
		"command", command,
		"speaker_index", st.CurrentSpeakerIndex,
		"remaining_seconds", st.RemainingSeconds,
	)
	writeJSON(w, http.StatusOK, st)
}

type nudgeRequest struct {
	Text string `json:"text"`

	// Target is the speaker index. Defaults to the current speaker.
	Target *int `json:"target,omitempty"`
}

type deliveryResponse struct {
	Delivered int `json:"delivered"`
}

// nudge sends a private message to one speaker.
func (s *Server) nudge(w http.ResponseWriter, r *http.Request) {
	var req nudgeRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rm, err := s.rooms.get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	target := rm.ctrl.Snapshot().CurrentSpeakerIndex
	if req.Target != nil {
		target = *req.Target
	}
	if target >= len(rm.ctrl.Speakers()) {
		writeError(w, r, fmt.Errorf("%w: speaker %d does not exist", realtime.ErrInvalidTarget, target))
		return
	}
	ev, err := realtime.NewPrivateMessage(rm.id, req.Text, target)
	if err != nil {
		writeError(w, r, err)
		return
	}
	n := s.publish(r.Context(), rm.id, ev)
	writeJSON(w, http.StatusAccepted, deliveryResponse{Delivered: n})
}

type reactionRequest struct {
	Emoji string `json:"emoji"`
}

func (s *Server) react(w http.ResponseWriter, r *http.Request) {
	var req reactionRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	if _, err := s.store.Get(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	ev, err := realtime.NewReaction(id, req.Emoji)
	if err != nil {
		writeError(w, r, err)
		return
	}
	n := s.publish(r.Context(), id, ev)
	writeJSON(w, http.StatusAccepted, deliveryResponse{Delivered: n})
}

// subscribe upgrades to a websocket that receives the meeting's events. The
// first frame is the current timer snapshot. ?speaker=N limits private
// messages to the ones addressed to speaker N.
func (s *Server) subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cfg := s.client
	if v := r.URL.Query().Get("speaker"); v != "" {
		idx, err := strconv.Atoi(v)
		if err != nil || idx < 0 {
			writeError(w, r, fmt.Errorf("%w: speaker must be a non-negative integer", errBadRequest))
			return
		}
		cfg.OnlySpeaker = true
		cfg.SpeakerIndex = idx
	}
	rm, err := s.rooms.get(ctx, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		observe.MeetingLogger(ctx, rm.id).Warn("api: websocket accept", "err", err)
		return
	}
	client := realtime.NewClient(conn, cfg)

	rm.publishMu.Lock()
	first, err := json.Marshal(realtime.TimerStateEvent(rm.id, rm.ctrl.Snapshot()))
	if err == nil {
		err = client.Send(first)
	}
	if err != nil {
		rm.publishMu.Unlock()
		conn.Close(websocket.StatusInternalError, "snapshot unavailable")
		return
	}
	unsubscribe := s.hub.Subscribe(rm.id, client)
	rm.publishMu.Unlock()
	defer unsubscribe()

	observe.MeetingLogger(ctx, rm.id).Debug("api: subscriber connected", "speaker_filter", cfg.OnlySpeaker)
	if err := client.Run(ctx); err != nil && !errors.Is(err, ctx.Err()) {
		observe.MeetingLogger(ctx, rm.id).Debug("api: subscriber disconnected", "err", err)
	}
}

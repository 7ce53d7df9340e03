package api

import (
	"fmt"
	"net/http"

	"github.com/MrWong99/podium/internal/meeting"
)

func (s *Server) createMeeting(w http.ResponseWriter, r *http.Request) {
	var req meeting.Request
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	m, err := meeting.Schedule(req, s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.store.Create(r.Context(), m); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/meetings/"+m.ID)
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) listMeetings(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.List(r.Context(), r.URL.Query().Get("host"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []meeting.Meeting{}
	}
	writeJSON(w, http.StatusOK, list)
}

// getMeeting returns the stored meeting. When its room is loaded the timer
// carries the live countdown value instead of the last persisted one.
func (s *Server) getMeeting(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	m, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rm := s.rooms.lookup(id); rm != nil {
		m.Timer = rm.ctrl.Snapshot()
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) meetingCost(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if m.Cost == nil {
		writeError(w, r, fmt.Errorf("%w: meeting has no cost inputs", meeting.ErrNotFound))
		return
	}
	view := meeting.CalculateCost(*m.Cost, m.TotalMinutes()).View()
	view.Objective = m.Cost.Objective
	view.EstimatedReturn = m.Cost.EstimatedReturn
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) speakerTimes(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.Get(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	times, err := s.store.SpeakerTimes(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if times == nil {
		times = []meeting.SpeakerTime{}
	}
	writeJSON(w, http.StatusOK, times)
}

package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/consultease/central/internal/adminops"
	"github.com/consultease/central/internal/persistence"
)

func parseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// facultyView is the kiosk/admin-facing projection of a faculty row; it
// surfaces ObservedPresent() as Present so callers need not interpret the
// grace-period mechanics, and also carries the raw persisted Status.
type facultyView struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Department   string `json:"department"`
	BeaconID     string `json:"beacon_id,omitempty"`
	Present      bool   `json:"present"`
	Status       string `json:"status"`
	Active       bool   `json:"active"`
	SyncState    string `json:"sync_state"`
	ImageRef     string `json:"image_ref,omitempty"`
}

func toFacultyView(f persistence.Faculty) facultyView {
	return facultyView{
		ID: f.ID, Name: f.Name, Email: f.Email, Department: f.Department,
		BeaconID: f.BeaconID, Present: f.ObservedPresent(), Status: string(f.Status),
		Active: f.Active, SyncState: string(f.SyncState), ImageRef: f.ImageRef,
	}
}

func (s *Server) handleListFaculty(w http.ResponseWriter, r *http.Request) {
	list, err := s.FacultyOps.List(r.Context())
	if err != nil {
		RespondDomainError(w, s.Logger, err)
		return
	}
	out := make([]facultyView, 0, len(list))
	for _, f := range list {
		if !f.Active {
			continue
		}
		out = append(out, toFacultyView(f))
	}
	Respond(w, http.StatusOK, map[string]any{"faculty": out, "count": len(out)})
}

func (s *Server) handleGetFaculty(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		RespondError(w, http.StatusBadRequest, "bad_request", "invalid faculty id")
		return
	}
	f, err := s.FacultyOps.Get(r.Context(), id)
	if err != nil {
		RespondDomainError(w, s.Logger, err)
		return
	}
	Respond(w, http.StatusOK, toFacultyView(f))
}

type createFacultyRequest struct {
	Name          string `json:"name" validate:"required"`
	Email         string `json:"email" validate:"required,email"`
	Department    string `json:"department"`
	BeaconID      string `json:"beacon_id"`
	AlwaysPresent bool   `json:"always_present"`
}

func (s *Server) handleCreateFaculty(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFromContext(r.Context())
	var req createFacultyRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}
	f, err := s.FacultyOps.Create(r.Context(), adminops.CreateFacultyParams{
		Name: req.Name, Email: req.Email, Department: req.Department,
		BeaconID: req.BeaconID, AlwaysPresent: req.AlwaysPresent, ActorID: sess.SubjectID,
	})
	if err != nil {
		RespondDomainError(w, s.Logger, err)
		return
	}
	Respond(w, http.StatusCreated, toFacultyView(f))
}

type updateFacultyRequest struct {
	Name       string `json:"name" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Department string `json:"department"`
	Active     bool   `json:"active"`
}

func (s *Server) handleUpdateFaculty(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFromContext(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		RespondError(w, http.StatusBadRequest, "bad_request", "invalid faculty id")
		return
	}
	var req updateFacultyRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}
	f, err := s.FacultyOps.Update(r.Context(), adminops.UpdateFacultyParams{
		ID: id, Name: req.Name, Email: req.Email, Department: req.Department,
		Active: req.Active, ActorID: sess.SubjectID,
	})
	if err != nil {
		RespondDomainError(w, s.Logger, err)
		return
	}
	Respond(w, http.StatusOK, toFacultyView(f))
}

type alwaysPresentRequest struct {
	AlwaysPresent bool `json:"always_present"`
}

func (s *Server) handleSetFacultyAlwaysPresent(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFromContext(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		RespondError(w, http.StatusBadRequest, "bad_request", "invalid faculty id")
		return
	}
	var req alwaysPresentRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}
	f, err := s.FacultyOps.SetAlwaysPresent(r.Context(), id, req.AlwaysPresent, sess.SubjectID)
	if err != nil {
		RespondDomainError(w, s.Logger, err)
		return
	}
	Respond(w, http.StatusOK, toFacultyView(f))
}

type assignBeaconRequest struct {
	BeaconID string `json:"beacon_id"`
}

func (s *Server) handleAssignFacultyBeacon(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFromContext(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		RespondError(w, http.StatusBadRequest, "bad_request", "invalid faculty id")
		return
	}
	var req assignBeaconRequest
	if err := Decode(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	f, err := s.FacultyOps.AssignBeacon(r.Context(), id, req.BeaconID, sess.SubjectID)
	if err != nil {
		RespondDomainError(w, s.Logger, err)
		return
	}
	Respond(w, http.StatusOK, toFacultyView(f))
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

func (s *Server) handleSetFacultyActive(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFromContext(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		RespondError(w, http.StatusBadRequest, "bad_request", "invalid faculty id")
		return
	}
	var req setActiveRequest
	if err := Decode(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	f, err := s.FacultyOps.SetActive(r.Context(), id, req.Active, sess.SubjectID)
	if err != nil {
		RespondDomainError(w, s.Logger, err)
		return
	}
	Respond(w, http.StatusOK, toFacultyView(f))
}

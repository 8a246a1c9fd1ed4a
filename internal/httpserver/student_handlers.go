package httpserver

import (
	"net/http"

	"github.com/consultease/central/internal/adminops"
	"github.com/consultease/central/internal/persistence"
)

type studentView struct {
	ID         int64  `json:"id"`
	RFIDUID    string `json:"rfid_uid"`
	Name       string `json:"name"`
	Department string `json:"department,omitempty"`
	Active     bool   `json:"active"`
}

func toStudentView(s persistence.Student) studentView {
	return studentView{ID: s.ID, RFIDUID: s.RFIDUID, Name: s.Name, Department: s.Department, Active: s.Active}
}

func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	list, err := s.StudentOps.List(r.Context())
	if err != nil {
		RespondDomainError(w, s.Logger, err)
		return
	}
	out := make([]studentView, 0, len(list))
	for _, st := range list {
		out = append(out, toStudentView(st))
	}
	Respond(w, http.StatusOK, map[string]any{"students": out, "count": len(out)})
}

func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		RespondError(w, http.StatusBadRequest, "bad_request", "invalid student id")
		return
	}
	st, err := s.StudentOps.Get(r.Context(), id)
	if err != nil {
		RespondDomainError(w, s.Logger, err)
		return
	}
	Respond(w, http.StatusOK, toStudentView(st))
}

type createStudentRequest struct {
	RFIDUID    string `json:"rfid_uid" validate:"required"`
	Name       string `json:"name" validate:"required"`
	Department string `json:"department"`
}

func (s *Server) handleCreateStudent(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFromContext(r.Context())
	var req createStudentRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}
	st, err := s.StudentOps.Create(r.Context(), adminops.CreateStudentParams{
		RFIDUID: req.RFIDUID, Name: req.Name, Department: req.Department, ActorID: sess.SubjectID,
	})
	if err != nil {
		RespondDomainError(w, s.Logger, err)
		return
	}
	Respond(w, http.StatusCreated, toStudentView(st))
}

type updateStudentRequest struct {
	Name       string `json:"name" validate:"required"`
	Department string `json:"department"`
}

func (s *Server) handleUpdateStudent(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFromContext(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		RespondError(w, http.StatusBadRequest, "bad_request", "invalid student id")
		return
	}
	var req updateStudentRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}
	st, err := s.StudentOps.Update(r.Context(), adminops.UpdateStudentParams{
		ID: id, Name: req.Name, Department: req.Department, ActorID: sess.SubjectID,
	})
	if err != nil {
		RespondDomainError(w, s.Logger, err)
		return
	}
	Respond(w, http.StatusOK, toStudentView(st))
}

func (s *Server) handleSetStudentActive(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFromContext(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		RespondError(w, http.StatusBadRequest, "bad_request", "invalid student id")
		return
	}
	var req setActiveRequest
	if err := Decode(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	st, err := s.StudentOps.SetActive(r.Context(), id, req.Active, sess.SubjectID)
	if err != nil {
		RespondDomainError(w, s.Logger, err)
		return
	}
	Respond(w, http.StatusOK, toStudentView(st))
}

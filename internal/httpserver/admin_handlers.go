package httpserver

import (
	"net/http"

	"github.com/consultease/central/internal/persistence"
)

type adminView struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Active   bool   `json:"active"`
}

func toAdminView(a persistence.Admin) adminView {
	return adminView{ID: a.ID, Username: a.Username, Active: a.Active}
}

func (s *Server) handleListAdmins(w http.ResponseWriter, r *http.Request) {
	list, err := s.AdminOps.List(r.Context())
	if err != nil {
		RespondDomainError(w, s.Logger, err)
		return
	}
	out := make([]adminView, 0, len(list))
	for _, a := range list {
		out = append(out, toAdminView(a))
	}
	Respond(w, http.StatusOK, map[string]any{"admins": out, "count": len(out)})
}

type createAdminRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (s *Server) handleCreateAdmin(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFromContext(r.Context())
	var req createAdminRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}
	a, err := s.AdminOps.Create(r.Context(), req.Username, req.Password, sess.SubjectID)
	if err != nil {
		RespondDomainError(w, s.Logger, err)
		return
	}
	Respond(w, http.StatusCreated, toAdminView(a))
}

func (s *Server) handleSetAdminActive(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFromContext(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		RespondError(w, http.StatusBadRequest, "bad_request", "invalid admin id")
		return
	}
	var req setActiveRequest
	if err := Decode(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if err := s.AdminOps.SetActive(r.Context(), id, req.Active, sess.SubjectID); err != nil {
		RespondDomainError(w, s.Logger, err)
		return
	}
	Respond(w, http.StatusNoContent, nil)
}

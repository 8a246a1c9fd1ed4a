package httpserver

import (
	"net/http"

	"github.com/consultease/central/internal/consultation"
	"github.com/consultease/central/internal/persistence"
)

type consultationView struct {
	ID          int64   `json:"id"`
	FacultyID   int64   `json:"faculty_id"`
	RequestText string  `json:"request_text"`
	CourseCode  string  `json:"course_code,omitempty"`
	Status      string  `json:"status"`
	RequestedAt string  `json:"requested_at"`
	RespondedAt *string `json:"responded_at,omitempty"`
	CompletedAt *string `json:"completed_at,omitempty"`
}

func toConsultationView(c persistence.Consultation) consultationView {
	v := consultationView{
		ID: c.ID, FacultyID: c.FacultyID, RequestText: c.RequestText, CourseCode: c.CourseCode,
		Status: string(c.Status), RequestedAt: c.RequestedAt.UTC().Format(rfc3339),
	}
	if c.RespondedAt != nil {
		t := c.RespondedAt.UTC().Format(rfc3339)
		v.RespondedAt = &t
	}
	if c.CompletedAt != nil {
		t := c.CompletedAt.UTC().Format(rfc3339)
		v.CompletedAt = &t
	}
	return v
}

const rfc3339 = "2006-01-02T15:04:05Z07:00"

type createConsultationRequest struct {
	FacultyID   int64  `json:"faculty_id" validate:"required"`
	RequestText string `json:"request_text" validate:"required"`
	CourseCode  string `json:"course_code"`
}

func (s *Server) handleCreateConsultation(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFromContext(r.Context())
	var req createConsultationRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}
	c, err := s.Consults.Request(r.Context(), consultation.RequestParams{
		StudentID: sess.SubjectID, FacultyID: req.FacultyID, RequestText: req.RequestText, CourseCode: req.CourseCode,
	})
	if err != nil {
		RespondDomainError(w, s.Logger, err)
		return
	}
	Respond(w, http.StatusCreated, toConsultationView(c))
}

func (s *Server) handleListMyConsultations(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFromContext(r.Context())
	list, err := s.Consultants.ListByStudent(r.Context(), sess.SubjectID)
	if err != nil {
		RespondDomainError(w, s.Logger, err)
		return
	}
	out := make([]consultationView, 0, len(list))
	for _, c := range list {
		out = append(out, toConsultationView(c))
	}
	Respond(w, http.StatusOK, map[string]any{"consultations": out, "count": len(out)})
}

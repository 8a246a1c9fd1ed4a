package httpserver

import (
	"net/http"
	"time"
)

type adminLoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type adminLoginResponse struct {
	AdminID     int64  `json:"admin_id"`
	Username    string `json:"username"`
	SessionID   string `json:"session_id"`
	CSRFToken   string `json:"csrf_token"`
	ForceChange bool   `json:"force_password_change"`
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}

	result, err := s.AdminAuth.Authenticate(r.Context(), req.Username, req.Password, clientAddr(r))
	if err != nil {
		RespondDomainError(w, s.Logger, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "consultease_session",
		Value:    result.Session.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(24 * time.Hour),
	})

	Respond(w, http.StatusOK, adminLoginResponse{
		AdminID:     result.Admin.ID,
		Username:    result.Admin.Username,
		SessionID:   result.Session.ID,
		CSRFToken:   result.Session.CSRFToken,
		ForceChange: result.ForceChange,
	})
}

func (s *Server) handleAdminLogout(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFromContext(r.Context())
	s.Sessions.Invalidate(sess.ID)
	http.SetCookie(w, &http.Cookie{Name: "consultease_session", Value: "", Path: "/", MaxAge: -1})
	Respond(w, http.StatusNoContent, nil)
}

type changePasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required"`
}

func (s *Server) handleAdminChangePassword(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFromContext(r.Context())
	var req changePasswordRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}
	if err := s.AdminAuth.ChangePassword(r.Context(), sess.SubjectID, req.NewPassword); err != nil {
		RespondDomainError(w, s.Logger, err)
		return
	}
	Respond(w, http.StatusNoContent, nil)
}

type kioskScanResponse struct {
	Seq       int64  `json:"seq"`
	StudentID int64  `json:"student_id,omitempty"`
	Name      string `json:"name,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error,omitempty"`
	At        string `json:"at,omitempty"`
}

// handleKioskScan returns the most recent RFID scan outcome for the kiosk's
// poll loop. There is no long-poll: the kiosk is expected to poll at a
// short, fixed interval and compare the returned seq against its own.
func (s *Server) handleKioskScan(w http.ResponseWriter, _ *http.Request) {
	seq, result, err, at := s.scans.Get()
	if seq == 0 {
		Respond(w, http.StatusOK, kioskScanResponse{Seq: 0})
		return
	}
	resp := kioskScanResponse{Seq: seq, At: at.UTC().Format(time.RFC3339)}
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.StudentID = result.Student.ID
		resp.Name = result.Student.Name
		if result.Session != nil {
			resp.SessionID = result.Session.ID
		}
	}
	Respond(w, http.StatusOK, resp)
}

func (s *Server) handleSetupStatus(w http.ResponseWriter, r *http.Request) {
	needsSetup, err := s.AdminOps.NeedsFirstTimeSetup(r.Context())
	if err != nil {
		RespondDomainError(w, s.Logger, err)
		return
	}
	Respond(w, http.StatusOK, map[string]bool{"needs_first_time_setup": needsSetup})
}

type firstAdminRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (s *Server) handleSetupFirstAdmin(w http.ResponseWriter, r *http.Request) {
	var req firstAdminRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}
	admin, err := s.AdminOps.SetupFirstAdmin(r.Context(), req.Username, req.Password)
	if err != nil {
		RespondDomainError(w, s.Logger, err)
		return
	}
	Respond(w, http.StatusCreated, map[string]any{"id": admin.ID, "username": admin.Username})
}

// clientAddr returns the caller's address for lockout/audit attribution,
// preferring a proxy-set header only when one is genuinely present.
func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

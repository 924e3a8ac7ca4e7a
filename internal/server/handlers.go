package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/vigilops/camgate/internal/auth"
	"github.com/vigilops/camgate/internal/observability"
	"github.com/vigilops/camgate/internal/reqctx"
	"github.com/vigilops/camgate/internal/userstore"
)

// writeJSON renders a JSON response.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError renders a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// requestContext returns the request's extracted context, building one on
// the spot if the middleware did not run.
func requestContext(r *http.Request) *reqctx.RequestContext {
	if rc, ok := reqctx.FromContext(r.Context()); ok {
		return rc
	}
	return reqctx.FromRequest(r)
}

// handleIngest accepts one multipart camera payload: a camera_id form field
// plus a payload file part. The caller has already passed authentication
// and the admin-equivalence check.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	// ParseMultipartForm alone only bounds the in-memory share; the body
	// reader itself enforces the configured cap.
	maxBytes := s.config.GetEffectiveMaxIngestBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload exceeds the configured size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "malformed multipart payload")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	cameraID := strings.TrimSpace(r.FormValue("camera_id"))
	if cameraID == "" {
		writeError(w, http.StatusBadRequest, "camera_id is required")
		return
	}

	payload, _, err := r.FormFile("payload")
	if err != nil {
		writeError(w, http.StatusBadRequest, "payload part is required")
		return
	}
	defer func() {
		_ = payload.Close()
	}()

	if err := s.frames.Store(r.Context(), cameraID, payload); err != nil {
		s.logger.WithContext(r.Context()).Error("frame sink rejected payload",
			observability.String("camera_id", cameraID),
			observability.Error(err),
		)
		// The caller is already authenticated; the body must not suggest
		// otherwise.
		writeError(w, http.StatusInternalServerError, "ingest pipeline failure")
		return
	}

	s.inventory.observe(cameraID)
	s.metrics.RecordIngest(cameraID)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":    "accepted",
		"camera_id": cameraID,
	})
}

// handleListCameras lists the cameras observed through ingest.
func (s *Server) handleListCameras(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cameras": s.inventory.list(),
	})
}

// handleRefresh exchanges the presented bearer token for a fresh one.
// Failures emit token_refresh_failed and never reveal issuer detail.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		auth.WriteUnauthorized(w, auth.ErrMissingCredential)
		return
	}

	rc := requestContext(r)

	if principal.Source != auth.SourceBearer {
		s.emitter.TokenRefreshFailed(r.Context(), rc, principal.Identity, "not_a_bearer_session", nil)
		writeError(w, http.StatusBadRequest, "refresh requires a bearer token session")
		return
	}

	raw := strings.TrimSpace(strings.TrimPrefix(
		r.Header.Get(auth.HeaderAuthorization), auth.SchemeBearer))

	refreshed, err := s.refresher.Refresh(r.Context(), raw)
	if err != nil {
		s.logger.WithContext(r.Context()).Warn("token refresh failed",
			observability.String("username", principal.Identity),
			observability.Error(err),
		)
		s.emitter.TokenRefreshFailed(r.Context(), rc, principal.Identity, "issuer_unavailable", nil)
		writeError(w, http.StatusServiceUnavailable, "token refresh unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"token": refreshed,
	})
}

// passwordRequest is the body of the password-change operation.
type passwordRequest struct {
	Password string `json:"password"`
}

// handleSetPassword replaces the target user's password and records the
// change with the acting principal.
func (s *Server) handleSetPassword(w http.ResponseWriter, r *http.Request) {
	target := r.PathValue("name")
	actor, _ := auth.PrincipalFromContext(r.Context())

	var body passwordRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if err := s.users.SetPassword(r.Context(), target, body.Password); err != nil {
		s.writeUserError(w, err)
		return
	}

	s.emitter.PasswordChanged(r.Context(), requestContext(r), target, actor.Identity, nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": "password changed"})
}

// roleRequest is the body of the role-change operation.
type roleRequest struct {
	Role string `json:"role"`
}

// handleSetRole changes the target user's role and records old and new
// values with the acting principal.
func (s *Server) handleSetRole(w http.ResponseWriter, r *http.Request) {
	target := r.PathValue("name")
	actor, _ := auth.PrincipalFromContext(r.Context())

	var body roleRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	role, err := auth.ParseRole(body.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown role")
		return
	}

	oldRole, err := s.users.SetRole(r.Context(), target, role)
	if err != nil {
		s.writeUserError(w, err)
		return
	}

	s.emitter.RoleChanged(r.Context(), requestContext(r),
		target, string(oldRole), string(role), actor.Identity, nil)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "role changed",
		"old_role": string(oldRole),
		"new_role": string(role),
	})
}

// handleDeactivate marks the target user inactive.
func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	target := r.PathValue("name")
	actor, _ := auth.PrincipalFromContext(r.Context())

	if err := s.users.Deactivate(r.Context(), target); err != nil {
		s.writeUserError(w, err)
		return
	}

	s.emitter.UserDeactivated(r.Context(), requestContext(r), target, actor.Identity, nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": "user deactivated"})
}

// writeUserError maps user store errors onto HTTP statuses.
func (s *Server) writeUserError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, userstore.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, userstore.ErrUserInactive):
		writeError(w, http.StatusConflict, "user is deactivated")
	case errors.Is(err, userstore.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, "password does not meet the length requirement")
	default:
		writeError(w, http.StatusBadRequest, "invalid user operation")
	}
}

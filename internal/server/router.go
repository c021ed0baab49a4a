package server

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Aman-CERP/amanrag/internal/auth"
	"github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/pkg/version"
)

// maxBodyBytes bounds request bodies; tool arguments are small.
const maxBodyBytes = 1 << 20

// Router builds the HTTP surface. /health is unauthenticated; the auth
// endpoints take their own credentials; everything under /mcp runs
// behind the bearer middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.logRequests)
	r.Use(s.cors)

	r.Get("/health", s.handleHealth)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Get("/callback", s.handleCallback)
		r.Post("/verify-mfa", s.handleVerifyMFA)
		r.Post("/m2m/token", s.handleM2MToken)
		r.Post("/logout", s.handleLogout)
	})

	r.Route("/mcp", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/tools", s.handleListTools)
		r.Post("/tool/{name}", s.handleCallTool)
		r.Get("/sse", s.handleSSE)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// handleLogin starts a magic-link login. The link token is delivered
// out of band; the response carries the callback URL the link resolves
// to so operators without a mailer can relay it.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if s.auth == nil {
		writeError(w, errors.Unavailable("authentication is not configured"))
		return
	}
	token, err := s.auth.IssueMagicLink(body.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"verify_url": s.cfg.Server.BaseURL + "/auth/callback?token=" + token,
	})
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		writeError(w, errors.Unavailable("authentication is not configured"))
		return
	}
	token, principal, err := s.auth.RedeemMagicLink(r.URL.Query().Get("token"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"principal": principal,
	})
}

func (s *Server) handleVerifyMFA(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if s.auth == nil {
		writeError(w, errors.Unavailable("authentication is not configured"))
		return
	}
	token, principal, err := s.auth.VerifyMFA(bearerToken(r), body.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"principal": principal,
	})
}

func (s *Server) handleM2MToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if s.auth == nil {
		writeError(w, errors.Unavailable("authentication is not configured"))
		return
	}
	token, principal, err := s.auth.ExchangeM2M(body.ClientID, body.ClientSecret)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"tier":       principal.Tier,
		"expires_at": principal.ExpiresAt,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if s.auth != nil {
		s.auth.Revoke(bearerToken(r))
	}
	writeJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tools": s.registry.List(auth.PrincipalFrom(r.Context())),
	})
}

// handleCallTool dispatches one tool call. The envelope is always the
// body; the status mirrors its code. With a session query parameter the
// envelope is additionally delivered on that SSE stream.
func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, errors.Wrap(errors.KindValidation, "read request body", err))
		return
	}

	name := chi.URLParam(r, "name")
	env := s.registry.Dispatch(r.Context(), name, raw)

	if session := r.URL.Query().Get("session"); session != "" {
		if !s.hub.Publish(session, name, env) {
			s.logger.Warn("sse session not found for tool result", "session", session, "tool", name)
		}
	}

	status := http.StatusOK
	if !env.OK {
		status = statusForKind(env.Code)
	}
	writeJSON(w, status, env)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders a non-tool error in the envelope shape so clients
// parse one contract everywhere.
func writeError(w http.ResponseWriter, err error) {
	kind := errors.KindInternal
	message := "an internal error occurred"
	var appErr *errors.Error
	if stderrors.As(err, &appErr) {
		kind = appErr.Kind
		if kind != errors.KindInternal {
			message = appErr.Message
			if appErr.Field != "" {
				message = appErr.Field + ": " + message
			}
		}
	}
	writeJSON(w, statusForKind(string(kind)), map[string]any{
		"ok":    false,
		"error": message,
		"code":  string(kind),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, errors.Wrap(errors.KindValidation, "invalid request body", err))
		return false
	}
	return true
}

package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/skillboard/internal/auth"
	"github.com/sakif/skillboard/internal/model"
	"github.com/sakif/skillboard/internal/service"
)

// GitHubAuthenticator is the OAuth side of auth.GitHubProvider.
type GitHubAuthenticator interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GitHubUser, error)
}

const stateCookie = "oauth_state"

// AuthHandler owns sign-up, login, logout and the caller's own profile.
//
//	POST /auth/signup, /auth/login, /auth/logout
//	GET  /auth/github/login, /auth/github/callback   (only with GitHub configured)
//	GET  /api/me, PUT /api/me
type AuthHandler struct {
	auth   *service.AuthService
	github GitHubAuthenticator // nil when GitHub OAuth isn't configured
	logger *slog.Logger
}

func NewAuthHandler(svc *service.AuthService, github GitHubAuthenticator, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: svc, github: github, logger: logger}
}

type signupRequest struct {
	Email    string     `json:"email"    validate:"required,email"`
	Password string     `json:"password" validate:"required,min=6,max=72"`
	Name     string     `json:"name"     validate:"required,max=80"`
	Role     model.Role `json:"role"     validate:"omitempty,oneof=contributor professional"`
	Category string     `json:"category" validate:"max=40"`
}

type loginRequest struct {
	Email    string `json:"email"    validate:"required"`
	Password string `json:"password" validate:"required"`
}

type profileRequest struct {
	Name      *string `json:"name"      validate:"omitempty,max=80"`
	Bio       *string `json:"bio"       validate:"omitempty,max=1000"`
	AvatarURL *string `json:"avatarUrl" validate:"omitempty,url"`
	Category  *string `json:"category"  validate:"omitempty,max=40"`
}

// HandleSignup creates a contributor or professional account and logs it in.
//
// REQUEST BODY: {"email":"a@b.co","password":"...","name":"Ada","role":"contributor","category":"ai-ml"}
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.auth.Signup(r.Context(), service.SignupInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Role:     req.Role,
		Category: req.Category,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	auth.SetCookie(w, res.Token, secureRequest(r))
	writeJSON(w, http.StatusCreated, res.User)
}

// HandleLogin answers 401 with one message for every kind of bad credential.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	auth.SetCookie(w, res.Token, secureRequest(r))
	writeJSON(w, http.StatusOK, res.User)
}

// HandleGitHubLogin sends the browser to GitHub with a fresh CSRF state,
// remembered in a 10-minute cookie.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth/github",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   secureRequest(r),
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback checks the state, turns the code into a GitHub
// profile, logs in (creating a contributor on first visit) and redirects
// home. A user who declined on GitHub lands on /?auth=denied.
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	c, err := r.Cookie(stateCookie)
	if err != nil || c.Value == "" || q.Get("state") != c.Value {
		h.logger.Warn("github callback: state check failed")
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "invalid OAuth state"})
		return
	}
	// Single use.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/auth/github", MaxAge: -1})

	if denied := q.Get("error"); denied != "" {
		h.logger.Info("github callback: authorization declined", slog.String("error", denied))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}
	code := q.Get("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "missing OAuth code"})
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("github callback: exchange failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: "upstream_error", Message: "authentication with GitHub failed"})
		return
	}

	res, err := h.auth.LoginOrRegisterGitHub(r.Context(), ghUser)
	if err != nil {
		h.logger.Error("github callback: login failed",
			slog.Int64("githubID", ghUser.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	auth.SetCookie(w, res.Token, secureRequest(r))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleLogout drops the cookie. The token itself stays valid until it
// expires; there is no server-side session to revoke.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the caller's profile.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireCaller(w, r)
	if !ok {
		return
	}

	user, err := h.auth.GetUserByID(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleUpdateMe edits the caller's profile; omitted fields stay as they
// are. Changing category moves the caller to that category's leaderboard.
//
// REQUEST BODY: {"bio":"...","category":"ai-ml"}
func (h *AuthHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.auth.UpdateProfile(r.Context(), userID, service.ProfileInput{
		Name:      req.Name,
		Bio:       req.Bio,
		AvatarURL: req.AvatarURL,
		Category:  req.Category,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// requireCaller reads the principal RequireAuth stored, answering 401 itself
// when it is missing (a route mounted without the middleware).
func requireCaller(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
	}
	return userID, ok
}

// secureRequest reports whether the client reached us over HTTPS, directly
// or through a TLS-terminating proxy, so cookies get the Secure flag there
// and still work on plain-HTTP localhost.
func secureRequest(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}

package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/voicebloom/auth"
	"github.com/cppla/voicebloom/middleware"
	"github.com/cppla/voicebloom/repository"
	"github.com/cppla/voicebloom/utils"
)

// AuthController exposes sign-up, sign-in, OAuth and account changes.
type AuthController struct {
	Backend
	auth  *auth.Service
	guard *utils.SignupGuard
}

// NewAuthController creates a new AuthController instance. A nil guard
// leaves sign-ups unthrottled.
func NewAuthController(b Backend, svc *auth.Service, guard *utils.SignupGuard) *AuthController {
	return &AuthController{Backend: b, auth: svc, guard: guard}
}

type credentialsRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// SignUp creates an account. The session is null when the account has to
// sign in explicitly.
func (a *AuthController) SignUp(ctx *gin.Context) {
	var req credentialsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.Password {
		utils.Error(ctx, http.StatusBadRequest, 40002, "passwords do not match")
		return
	}

	c, cancel := a.callContext(ctx)
	defer cancel()
	ip := ctx.ClientIP()
	if !a.guard.Allow(c, ip) {
		utils.Error(ctx, http.StatusTooManyRequests, 42902, "too many sign-up attempts, try again later")
		return
	}
	res, err := a.auth.SignUp(c, req.Email, req.Password)
	if err != nil {
		var verr *auth.ValidationError
		switch {
		case errors.As(err, &verr):
			utils.Error(ctx, http.StatusBadRequest, 40003, verr.Error())
		case errors.Is(err, auth.ErrEmailTaken):
			utils.Error(ctx, http.StatusConflict, 40901, "email already registered")
		default:
			a.fail(ctx, "", http.StatusInternalServerError, 50001, "failed to create account", err)
		}
		return
	}
	a.guard.Record(c, ip)
	utils.Created(ctx, res)
}

// SignIn exchanges credentials for a session.
func (a *AuthController) SignIn(ctx *gin.Context) {
	var req credentialsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	c, cancel := a.callContext(ctx)
	defer cancel()
	res, err := a.auth.SignIn(c, req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid email or password")
		return
	}
	if err != nil {
		a.fail(ctx, "", http.StatusInternalServerError, 50002, "failed to sign in", err)
		return
	}
	utils.Success(ctx, res)
}

// SignOut revokes the bearer token and drops the session cache.
func (a *AuthController) SignOut(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	c, cancel := a.callContext(ctx)
	defer cancel()
	if err := a.auth.SignOut(c, ctx.GetString(middleware.ContextTokenKey)); err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40104, "invalid or revoked token")
		return
	}
	if a.Sessions != nil {
		if err := a.Sessions.Drop(c, userID); err != nil {
			a.logger().Warn("drop session cache failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	utils.Success(ctx, gin.H{"message": "signed out"})
}

// Me returns the current profile.
func (a *AuthController) Me(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	c, cancel := a.callContext(ctx)
	defer cancel()
	profile, err := a.auth.Profile(c, userID)
	if errors.Is(err, repository.ErrNotFound) {
		utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
		return
	}
	if err != nil {
		a.fail(ctx, userID, http.StatusInternalServerError, 50003, "failed to load profile", err)
		return
	}
	utils.Success(ctx, gin.H{"user": profile})
}

// Events streams the session changes of the current user.
func (a *AuthController) Events(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	events, cancel := a.auth.Subscribe(userID)
	defer cancel()

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	openStream(ctx)
	done := ctx.Request.Context().Done()
	for {
		select {
		case <-done:
			return
		case ev, open := <-events:
			if !open {
				return
			}
			sendEvent(ctx, string(ev.Type), ev)
		case <-ticker.C:
			sendKeepAlive(ctx)
		}
	}
}

// ChangePassword sets a new password after confirmation.
func (a *AuthController) ChangePassword(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	var req struct {
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	c, cancel := a.callContext(ctx)
	defer cancel()
	err := a.auth.ChangePassword(c, userID, req.Password, req.ConfirmPassword)
	var verr *auth.ValidationError
	switch {
	case err == nil:
		a.toastSuccess(ctx, userID, "Password updated", "")
		utils.Success(ctx, gin.H{"message": "password updated"})
	case errors.As(err, &verr):
		utils.Error(ctx, http.StatusBadRequest, 40004, verr.Error())
	case errors.Is(err, repository.ErrNotFound):
		utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
	default:
		a.fail(ctx, userID, http.StatusInternalServerError, 50004, "failed to update password", err)
	}
}

// ChangeEmail moves the account to a new address.
func (a *AuthController) ChangeEmail(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	var req struct {
		Email string `json:"email"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	c, cancel := a.callContext(ctx)
	defer cancel()
	err := a.auth.ChangeEmail(c, userID, req.Email)
	var verr *auth.ValidationError
	switch {
	case err == nil:
		a.toastSuccess(ctx, userID, "Email updated", "")
		utils.Success(ctx, gin.H{"message": "email updated"})
	case errors.As(err, &verr):
		utils.Error(ctx, http.StatusBadRequest, 40005, verr.Error())
	case errors.Is(err, auth.ErrEmailTaken):
		utils.Error(ctx, http.StatusConflict, 40901, "email already registered")
	case errors.Is(err, repository.ErrNotFound):
		utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
	default:
		a.fail(ctx, userID, http.StatusInternalServerError, 50005, "failed to update email", err)
	}
}

// Providers lists the enabled OAuth providers.
func (a *AuthController) Providers(ctx *gin.Context) {
	utils.Success(ctx, gin.H{"providers": a.auth.Providers()})
}

// OAuthRedirect returns the provider consent URL.
func (a *AuthController) OAuthRedirect(ctx *gin.Context) {
	c, cancel := a.callContext(ctx)
	defer cancel()
	url, state, err := a.auth.AuthCodeURL(c, ctx.Param("provider"))
	if errors.Is(err, auth.ErrUnknownProvider) {
		utils.Error(ctx, http.StatusNotFound, 40402, "unsupported oauth provider")
		return
	}
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50006, "failed to start oauth flow")
		return
	}
	utils.Success(ctx, gin.H{"authorization_url": url, "state": state})
}

// OAuthCallback completes the provider flow and issues a session.
func (a *AuthController) OAuthCallback(ctx *gin.Context) {
	c, cancel := a.callContext(ctx)
	defer cancel()
	res, err := a.auth.OAuthSignIn(c, ctx.Param("provider"), ctx.Query("code"), ctx.Query("state"))
	var verr *auth.ValidationError
	switch {
	case err == nil:
		utils.Success(ctx, res)
	case errors.Is(err, auth.ErrUnknownProvider):
		utils.Error(ctx, http.StatusNotFound, 40402, "unsupported oauth provider")
	case errors.Is(err, auth.ErrInvalidState):
		utils.Error(ctx, http.StatusBadRequest, 40006, "invalid or expired oauth state")
	case errors.As(err, &verr):
		utils.Error(ctx, http.StatusBadRequest, 40007, verr.Error())
	default:
		a.logger().Warn("oauth sign-in failed", zap.String("provider", ctx.Param("provider")), zap.Error(err))
		utils.Error(ctx, http.StatusBadGateway, 50201, "oauth sign-in failed")
	}
}

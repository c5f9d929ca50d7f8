package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/voicebloom/auth"
	"github.com/cppla/voicebloom/config"
	"github.com/cppla/voicebloom/controllers"
	"github.com/cppla/voicebloom/middleware"
	"github.com/cppla/voicebloom/prompts"
	"github.com/cppla/voicebloom/repository"
	"github.com/cppla/voicebloom/session"
	"github.com/cppla/voicebloom/storage"
	"github.com/cppla/voicebloom/utils"
)

// Deps are the collaborators the API is wired to.
type Deps struct {
	Config     config.AppConfig
	Auth       *auth.Service
	Recordings repository.RecordingRepository
	Feedbacks  repository.FeedbackRepository
	Profiles   repository.ProfileRepository
	Objects    storage.ObjectStore
	Sessions   *session.Registry
	Prompts    *prompts.Catalog
	Location   *time.Location
	// AccessLog receives request logs; nil keeps them on the app logger.
	AccessLog *zap.Logger
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(d Deps) *gin.Engine {
	cfg := d.Config
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	accessLog := d.AccessLog
	if accessLog == nil {
		accessLog = utils.Logger
	}
	r.Use(utils.Ginzap(accessLog, time.RFC3339, true))
	r.Use(utils.RecoveryWithZap(accessLog, false))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	backend := controllers.Backend{
		Sessions: d.Sessions,
		Timeout:  cfg.BackendTimeout(),
		Logger:   utils.Logger,
	}
	signupGuard := utils.NewSignupGuard(cfg.SignupCooldown(), cfg.SignupMaxPerIPPerDay, nil)
	authController := controllers.NewAuthController(backend, d.Auth, signupGuard)
	profileController := controllers.NewProfileController(backend, d.Profiles)
	promptController := controllers.NewPromptController(backend, d.Prompts, d.Location)
	recordingController := controllers.NewRecordingController(backend, d.Recordings, d.Objects, controllers.RecordingOptions{
		SaveURLTTL:    cfg.SignedURLTTL(),
		ListURLTTL:    cfg.ListSignedURLTTL(),
		MaxAudioBytes: cfg.MaxAudioBytes,
	})
	feedbackController := controllers.NewFeedbackController(backend, d.Recordings, d.Feedbacks)
	progressController := controllers.NewProgressController(backend, d.Recordings, d.Location)
	sessionController := controllers.NewSessionController(backend, cfg.MaxAudioBytes)

	if local, ok := d.Objects.(*storage.LocalStore); ok {
		r.GET("/media/*path", controllers.NewMediaController(local).Serve)
	}

	requireAuth := middleware.AuthRequired(d.Auth)
	limited := middleware.RateLimitMiddleware(cfg.RateLimitPerMinute)

	api := r.Group("/api/v1")
	api.GET("/prompts/daily", promptController.Daily)

	authGroup := api.Group("/auth")
	authGroup.GET("/providers", authController.Providers)
	authGroup.GET("/oauth/:provider/login", limited, authController.OAuthRedirect)
	authGroup.GET("/oauth/:provider/callback", limited, authController.OAuthCallback)
	authGroup.POST("/signup", limited, authController.SignUp)
	authGroup.POST("/signin", limited, authController.SignIn)
	authGroup.POST("/signout", requireAuth, authController.SignOut)
	authGroup.GET("/me", requireAuth, authController.Me)
	authGroup.GET("/events", requireAuth, authController.Events)
	authGroup.PATCH("/password", requireAuth, limited, authController.ChangePassword)
	authGroup.PATCH("/email", requireAuth, limited, authController.ChangeEmail)

	protected := api.Group("")
	protected.Use(requireAuth)

	protected.GET("/profile", profileController.Get)
	protected.PATCH("/profile/username", limited, profileController.UpdateUsername)
	protected.PATCH("/profile/location", limited, profileController.UpdateLocation)

	protected.POST("/recordings", limited, recordingController.Create)
	protected.GET("/recordings", recordingController.List)
	protected.PATCH("/recordings/:id", limited, recordingController.Update)
	protected.DELETE("/recordings/:id", limited, recordingController.Delete)
	protected.GET("/community/recordings", recordingController.Community)

	protected.GET("/recordings/:id/feedbacks", feedbackController.List)
	protected.POST("/recordings/:id/feedbacks", limited, feedbackController.Create)
	protected.DELETE("/feedbacks/:id", limited, feedbackController.Delete)

	protected.GET("/progress/streak", progressController.Streak)
	protected.GET("/progress/activity", progressController.Activity)
	protected.GET("/progress/chart", progressController.Chart)
	protected.GET("/progress/stats", progressController.Stats)

	protected.GET("/session", sessionController.Get)
	protected.GET("/session/stream", sessionController.Stream)
	protected.POST("/session/toasts", sessionController.AddToast)
	protected.DELETE("/session/toasts/:id", sessionController.DismissToast)
	protected.PUT("/session/recording", sessionController.SetRecording)
	protected.PUT("/session/audio", sessionController.PutAudio)
	protected.GET("/session/audio", sessionController.GetAudio)
	protected.DELETE("/session/audio", sessionController.DeleteAudio)

	r.NoRoute(func(ctx *gin.Context) {
		if strings.HasPrefix(ctx.Request.URL.Path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
			return
		}
		utils.Error(ctx, http.StatusNotFound, 40400, "not found")
	})

	return r
}

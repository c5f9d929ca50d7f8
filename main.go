package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/voicebloom/auth"
	"github.com/cppla/voicebloom/config"
	"github.com/cppla/voicebloom/prompts"
	"github.com/cppla/voicebloom/repository"
	"github.com/cppla/voicebloom/routes"
	"github.com/cppla/voicebloom/session"
	"github.com/cppla/voicebloom/storage"
	"github.com/cppla/voicebloom/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	loc, err := cfg.Location()
	if err != nil {
		utils.Sugar.Fatalf("timezone: %v", err)
	}

	db, err := config.InitDatabase(repository.Models()...)
	if err != nil {
		utils.Sugar.Fatalf("database: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	objects, err := storage.New(ctx, cfg)
	if err != nil {
		utils.Sugar.Fatalf("object storage: %v", err)
	}

	persister, closePersister, err := openPersister(cfg)
	if err != nil {
		utils.Sugar.Fatalf("session store: %v", err)
	}
	sessions := session.NewRegistry(persister, utils.Logger, nil).WithIdleTTL(cfg.SessionIdle())
	sessions.StartSweeper(ctx, time.Duration(cfg.ToastSweepSeconds)*time.Second)

	catalog, err := prompts.Load(cfg.PromptsFile)
	if err != nil {
		utils.Sugar.Fatalf("prompts: %v", err)
	}

	profiles := repository.NewProfileRepository(db)
	authService := auth.NewService(profiles, auth.Options{
		Secret:     cfg.JWTSecret,
		TokenTTL:   cfg.TokenTTL(),
		AutoSignIn: cfg.AutoSignInAfterSignup,
		Logger:     utils.Logger,
		OAuth: auth.OAuthOptions{
			GitHubClientID:     cfg.GitHubClientID,
			GitHubClientSecret: cfg.GitHubClientSecret,
			GoogleClientID:     cfg.GoogleClientID,
			GoogleClientSecret: cfg.GoogleClientSecret,
			RedirectBase:       cfg.OAuthRedirectBase,
		},
	})

	accessLog, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err != nil {
		utils.Sugar.Warnf("access log disabled: %v", err)
		accessLog = nil
	}

	r := routes.SetupRouter(routes.Deps{
		Config:     cfg,
		Auth:       authService,
		Recordings: repository.NewRecordingRepository(db),
		Feedbacks:  repository.NewFeedbackRepository(db),
		Profiles:   profiles,
		Objects:    objects,
		Sessions:   sessions,
		Prompts:    catalog,
		Location:   loc,
		AccessLog:  accessLog,
	})

	utils.Logger.Info("starting server",
		zap.String("port", cfg.AppPort),
		zap.String("storage", defaultDriver(cfg.StorageDriver)),
		zap.String("session_store", cfg.SessionStore))
	err = utils.GraceServer(ctx, ":"+cfg.AppPort, r, utils.GraceOptions{
		BeforeDrain: []func(){cancel},
		AfterDrain:  []func(){closePersister},
	})
	if err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}

// openPersister selects where session snapshots survive restarts.
func openPersister(cfg config.AppConfig) (session.Persister, func(), error) {
	switch cfg.SessionStore {
	case "", "memory":
		return session.NewMemoryPersister(), func() {}, nil
	case "redis":
		rc := utils.GetRedis()
		if rc == nil {
			return nil, nil, fmt.Errorf("session store redis needs RedisHost")
		}
		return session.NewRedisPersister(rc, cfg.SessionTTL()), func() {}, nil
	case "sqlite":
		p, err := session.OpenSQLitePersister(cfg.SessionSQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return p, func() {
			if err := p.Close(); err != nil {
				utils.Sugar.Warnf("close session store: %v", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported session store: %s", cfg.SessionStore)
	}
}

func defaultDriver(d string) string {
	if d == "" {
		return storage.DriverLocal
	}
	return d
}

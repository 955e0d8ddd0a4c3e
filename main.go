package main

import (
	"context"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"shariahguide/internal/api"
	"shariahguide/internal/config"
	"shariahguide/internal/document"
	"shariahguide/internal/feedback"
	"shariahguide/internal/logging"
	"shariahguide/internal/metrics"
	"shariahguide/internal/service/ai"
	"shariahguide/internal/service/assistant"
	"shariahguide/internal/service/speech"
	"shariahguide/internal/session"
	"shariahguide/internal/storage"
	"shariahguide/internal/worker"
)

func main() {
	// .env files are optional; real environment variables win.
	_ = godotenv.Load(".env.local", ".env")

	cfg, err := config.Load(os.Getenv(config.EnvConfigPath))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logCloser, err := logging.Setup(cfg.BasicConfig.LogLevel, cfg.BasicConfig.LogFile)
	if err != nil {
		log.Fatalf("setup logging: %v", err)
	}
	defer logCloser.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loader, err := document.NewLoader(ctx, cfg.BasicConfig.DocumentPath)
	if err != nil {
		log.Fatalf("init document loader: %v", err)
	}
	text, err := loader.Load(ctx)
	if err != nil {
		log.Fatalf("load document %s: %v", loader.Path(), err)
	}
	log.WithField("path", loader.Path()).WithField("chars", len(text)).Info("document loaded")

	db, err := storage.Open(storage.MemoryDSN)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := storage.Migrate(db); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	providerName, providerCfg := cfg.Provider()
	generator, err := ai.NewGenerator(providerName, providerCfg)
	if err != nil {
		log.Fatalf("init generator: %v", err)
	}
	if providerCfg.APIKey == "" {
		log.WithField("provider", providerName).Warn("no API key configured; answers will report an error")
	}

	var recorder *metrics.Recorder
	if cfg.BasicConfig.MetricsEnabled {
		recorder = metrics.NewRecorder()
	}

	pipeline := assistant.Pipeline{
		Generator:     ai.NewAdvisor(generator),
		Metrics:       recorder,
		SpeakFailures: cfg.Generation.SpeakFailures,
	}
	if !cfg.Speech.Disabled {
		synth := speech.NewSynthesizer(speech.NewGoogleTTS(cfg.Speech.TTSURL, nil), cfg.Speech.Slow)
		synth.StartTempFileCleaner(ctx,
			time.Duration(cfg.BasicConfig.TempCleanInterval)*time.Minute,
			time.Duration(cfg.BasicConfig.TempFileTTL)*time.Minute)
		pipeline.Detector = speech.NewLanguageDetector(speech.NewTranslateDetector(cfg.Speech.DetectURL, nil))
		pipeline.Synthesizer = synth
	} else {
		log.Info("speech synthesis disabled")
	}

	assistantService := assistant.NewService(db, text, pipeline)
	turns := worker.NewManager(assistantService, worker.Config{
		QueueSize:   cfg.BasicConfig.SessionQueueSize,
		IdleTimeout: time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Minute,
	})
	defer turns.Close()

	sessions := session.NewService(db)
	sessions.SetSecureCookies(cfg.BasicConfig.SecureCookies)
	handlers := api.NewHandler(assistantService, sessions, turns, feedback.NewSink(cfg.BasicConfig.FeedbackPath), recorder)
	handlers.SetAbout(api.About{
		Name:     cfg.About.Name,
		Role:     cfg.About.Role,
		Email:    cfg.About.Email,
		LinkedIn: cfg.About.LinkedIn,
	})

	router := gin.New()
	router.Use(logging.GinLogrusLogger(), logging.GinLogrusRecovery(), recorder.Middleware())
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8501"
	}
	log.Infof("Shari'ah Guide listening on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	httpadapter "github.com/truliv/voice-agent/internal/adapters/http"
	"github.com/truliv/voice-agent/internal/adapters/livekit"
	webrtcadapter "github.com/truliv/voice-agent/internal/adapters/webrtc"
	"github.com/truliv/voice-agent/internal/adapters/worker"
	"github.com/truliv/voice-agent/internal/config"
	"github.com/truliv/voice-agent/internal/core/model/openai"
	"github.com/truliv/voice-agent/internal/core/model/provider"
	"github.com/truliv/voice-agent/internal/core/session"
	"github.com/truliv/voice-agent/internal/handler"
	"github.com/truliv/voice-agent/internal/repository"
	"github.com/truliv/voice-agent/pkg/logger"
	"github.com/truliv/voice-agent/pkg/redis"
	"github.com/truliv/voice-agent/pkg/twilio"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags.
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	// Load .env file for local development if it exists.
	// This will not override environment variables set by the deployment.
	if err := godotenv.Load(); err != nil {
		log.Printf("Info: .env file not found or skipped: %v", err)
	}

	if _, err := logger.Init(os.Getenv("LOG_ENV")); err != nil {
		log.Printf("failed to initialize zap logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		logger.Base().Fatal("Invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Base().Fatal("Agent stopped with error", zap.Error(err))
	}
	logger.Base().Info("Agent stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	ctx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	lkConfig, err := livekit.NewLiveKitConfig(cfg.LiveKitURL, cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, cfg.AgentName, config.OutboundRoomPrefix)
	if err != nil {
		return fmt.Errorf("invalid livekit config: %w", err)
	}
	sipBridge := livekit.NewSIPBridge(lkConfig)

	recorder, closeRecorder := newRecorder(ctx, cfg)
	defer closeRecorder()

	turnService := twilio.NewTwilioTokenService(cfg.TwilioAccountSID, cfg.TwilioAuthToken)
	models := openai.NewProvider(openai.Config{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       cfg.OpenAIRealtimeModel,
		Voice:       cfg.OpenAIVoice,
		STUNServers: cfg.STUNServers,
		TURN:        webrtcadapter.NewTwilioTURN(turnService),
	})

	if !cfg.TransferEnabled() {
		logger.Base().Warn("HUMAN_TRANSFER_NUMBER not set, transfers will be declined")
	}

	assembler := session.NewAssembler(session.Options{
		TrunkID:        cfg.SIPOutboundTrunkID,
		TransferNumber: cfg.HumanTransferNumber,
		Region:         cfg.DefaultRegion,
	}, session.Deps{
		Placer:        sipBridge,
		Transferer:    sipBridge,
		Conversations: models,
		Properties:    httpadapter.NewTrulivClient(cfg.TrulivAPIBaseURL, cfg.TrulivAPIKey, cfg.LookupTimeout),
		Geocoder:      httpadapter.NewGeocodeClient(cfg.GeocodeURL, cfg.GoogleMapsAPIKey, cfg.LookupTimeout),
		Recorder:      recorder,
	})

	join := func(ctx context.Context, url, token string) (provider.MediaRoom, error) {
		return livekit.JoinRoom(ctx, url, token)
	}
	agentWorker := worker.New(worker.Options{
		ServerURL: lkConfig.WebSocketURL(),
		AgentName: cfg.AgentName,
		Version:   version,
		MaxJobs:   cfg.MaxConcurrentJob,
		Token:     lkConfig.GenerateWorkerToken,
	}, session.NewJobRunner(join, assembler))

	router := handler.NewRouter(handler.RouterOptions{
		Dispatcher:            livekit.NewDispatcher(lkConfig),
		DefaultRegion:         cfg.DefaultRegion,
		LiveKitAPIKey:         cfg.LiveKitAPIKey,
		LiveKitAPISecret:      cfg.LiveKitAPISecret,
		APISecretKey:          cfg.APISecretKey,
		DispatchRatePerMinute: cfg.DispatchRatePerMinute,
	})
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Base().Info("Starting HTTP server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	workerErr := make(chan error, 1)
	go func() {
		logger.Base().Info("Starting agent worker",
			zap.String("agent_name", cfg.AgentName),
			zap.String("version", version),
			zap.Int("max_jobs", cfg.MaxConcurrentJob))
		workerErr <- agentWorker.Run(ctx)
	}()

	var (
		runErr     error
		workerDone bool
	)
	select {
	case <-ctx.Done():
		logger.Base().Info("Shutdown signal received")
	case err, ok := <-serverErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	case err := <-workerErr:
		workerDone = true
		runErr = err
	}

	cancelRun()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Base().Warn("HTTP server shutdown failed", zap.Error(err))
	}

	// Running jobs finish their call records before the worker returns.
	if !workerDone {
		select {
		case err := <-workerErr:
			if runErr == nil {
				runErr = err
			}
		case <-shutdownCtx.Done():
			logger.Base().Warn("Timed out waiting for running jobs")
		}
	}
	return runErr
}

// newRecorder persists call records to Redis when configured and keeps them
// in memory otherwise.
func newRecorder(ctx context.Context, cfg *config.Config) (repository.CallRecorder, func()) {
	if !cfg.RedisEnabled() {
		logger.Info(ctx, "REDIS_HOST not set, call records are not persisted")
		return repository.NewCallRecordRepository(nil), func() {}
	}

	redisSvc, err := redis.NewRedisService(&redis.RedisConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		logger.Warn(ctx, "Failed to connect to redis, call records are not persisted", zap.Error(err))
		return repository.NewCallRecordRepository(nil), func() {}
	}

	logger.Info(ctx, "Call records stored in redis",
		zap.String("host", cfg.RedisHost),
		zap.Duration("ttl", config.CallRecordTTL))
	return repository.NewCallRecordRepository(redisSvc), func() {
		if err := redisSvc.Close(); err != nil {
			logger.Warn(ctx, "Failed to close redis", zap.Error(err))
		}
	}
}

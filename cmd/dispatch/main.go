package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/truliv/voice-agent/internal/adapters/livekit"
	"github.com/truliv/voice-agent/internal/config"
	"github.com/truliv/voice-agent/internal/domain"
	"github.com/truliv/voice-agent/internal/services/call"
	"github.com/truliv/voice-agent/pkg/logger"
	"github.com/truliv/voice-agent/pkg/redis"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Info: .env file not found or skipped: %v", err)
	}

	purpose := flag.String("purpose", "", "outbound script: rent_reminder or followup")
	region := flag.String("region", "", "region for numbers without a country code (defaults to DEFAULT_REGION)")
	timeout := flag.Duration("timeout", 10*time.Second, "dispatch request timeout")
	follow := flag.Duration("follow", 0, "if set, print the call's lifecycle events from redis for up to this long")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <phone-number>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if _, err := logger.Init(os.Getenv("LOG_ENV")); err != nil {
		log.Printf("failed to initialize zap logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		logger.Base().Fatal("Invalid configuration", zap.Error(err))
	}
	if *region == "" {
		*region = cfg.DefaultRegion
	}

	phoneNumber, err := call.NormalizeNumber(flag.Arg(0), *region)
	if err != nil {
		logger.Base().Fatal("Invalid phone number", zap.String("phone_number", flag.Arg(0)), zap.Error(err))
	}

	lkConfig, err := livekit.NewLiveKitConfig(cfg.LiveKitURL, cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, cfg.AgentName, config.OutboundRoomPrefix)
	if err != nil {
		logger.Base().Fatal("Invalid livekit config", zap.Error(err))
	}

	var events <-chan domain.CallEvent
	followCtx, stopFollow := context.WithTimeout(context.Background(), *follow)
	defer stopFollow()
	if *follow > 0 {
		// Subscribe before dispatching so the first event is not missed.
		events, err = subscribeCallEvents(followCtx, cfg)
		if err != nil {
			logger.Base().Fatal("Failed to follow call events", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result, err := livekit.NewDispatcher(lkConfig).DispatchOutbound(ctx, phoneNumber, domain.ParseCallPurpose(*purpose))
	if err != nil {
		logger.Base().Fatal("Dispatch failed", zap.Error(err))
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))

	if events != nil {
		printCallEvents(followCtx, events, result.RoomName)
	}
}

// subscribeCallEvents streams call events published by the agent.
func subscribeCallEvents(ctx context.Context, cfg *config.Config) (<-chan domain.CallEvent, error) {
	if !cfg.RedisEnabled() {
		return nil, fmt.Errorf("REDIS_HOST is not set")
	}
	redisSvc, err := redis.NewRedisService(&redis.RedisConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, err
	}

	events := make(chan domain.CallEvent, 16)
	err = redisSvc.Subscribe(ctx, config.CallEventsChannel, func(payload string) {
		var event domain.CallEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			logger.Warn(ctx, "Skipping malformed call event", zap.Error(err))
			return
		}
		select {
		case events <- event:
		case <-ctx.Done():
		}
	})
	if err != nil {
		redisSvc.Close()
		return nil, err
	}

	go func() {
		<-ctx.Done()
		redisSvc.Close()
	}()
	return events, nil
}

// printCallEvents prints the events of roomName until the call reaches a
// final status or ctx expires.
func printCallEvents(ctx context.Context, events <-chan domain.CallEvent, roomName string) {
	for {
		select {
		case <-ctx.Done():
			fmt.Println("stopped following before the call ended")
			return
		case event := <-events:
			if event.RoomName != roomName {
				continue
			}
			fmt.Printf("%s %s %s\n", event.At.Format(time.RFC3339), event.Status, event.Reason)
			if event.Status != domain.CallStatusActive {
				return
			}
		}
	}
}

package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"log"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/jessevdk/go-flags"
	"github.com/layer-3/sentinel/adapters/events"
	"github.com/layer-3/sentinel/adapters/keyring"
	"github.com/layer-3/sentinel/adapters/provider"
	"github.com/layer-3/sentinel/adapters/store"
	"github.com/layer-3/sentinel/adapters/tokenizer"
	"github.com/layer-3/sentinel/service"
	"github.com/layer-3/sentinel/transport/http"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			os.Exit(0)
		}
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := watermill.NewStdLogger(cfg.Debug, cfg.Trace)

	// Extension tokens only need to outlive this process.
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		log.Fatalf("Failed to generate signing key: %v", err)
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to parse Redis URL: %v", err)
	}
	redisClient := redis.NewClient(opts)

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: redisClient,
		},
		logger,
	)
	if err != nil {
		log.Fatalf("Failed to create Redis publisher: %v", err)
	}

	tokens := tokenizer.NewJWTTokenizer(privateKey)
	ks := keystore.NewKeyStore(cfg.KeystoreDir, keystore.StandardScryptN, keystore.StandardScryptP)

	broker := service.NewBroker(service.Config{
		Store:        store.NewRedisStore(redisClient, cfg.RedisPrefix),
		Keyring:      keyring.NewKeystoreKeyring(ks),
		UI:           events.NewWatermillApproval(publisher, tokens, cfg.TokenTTL),
		Providers:    provider.NewRPCFactory(cfg.Providers),
		Notification: cfg.notificationMode(),
		Logger:       logger,
	})
	if err := broker.Load(context.Background()); err != nil {
		log.Fatalf("Failed to load state: %v", err)
	}

	router := http.SetupRouter(broker, tokens, logger)

	logger.Info("Starting server", watermill.LogFields{
		"listen":    cfg.Listen,
		"providers": len(cfg.Providers),
	})
	if err := router.Run(cfg.Listen); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

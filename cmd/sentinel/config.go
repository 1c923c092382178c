package main

import (
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/layer-3/sentinel/core"
)

type config struct {
	Listen       string            `long:"listen" env:"SENTINEL_LISTEN" default:":9000" description:"Address the HTTP server listens on"`
	RedisURL     string            `long:"redis-url" env:"REDIS_URL" default:"redis://localhost:6379/0" description:"Redis connection URL"`
	RedisPrefix  string            `long:"redis-prefix" env:"SENTINEL_REDIS_PREFIX" default:"sentinel:" description:"Prefix of every key written to Redis"`
	KeystoreDir  string            `long:"keystore" env:"SENTINEL_KEYSTORE" default:"./keystore" description:"Directory of the encrypted key files"`
	Providers    map[string]string `long:"provider" description:"RPC provider as key:url, may be repeated"`
	Notification string            `long:"notification" env:"SENTINEL_NOTIFICATION" default:"normal" choice:"normal" choice:"window" choice:"extension" description:"Default popup behaviour"`
	TokenTTL     time.Duration     `long:"token-ttl" env:"SENTINEL_TOKEN_TTL" default:"15m" description:"Lifetime of extension tokens"`
	Debug        bool              `long:"debug" env:"SENTINEL_DEBUG" description:"Enable debug logging"`
	Trace        bool              `long:"trace" env:"SENTINEL_TRACE" description:"Enable trace logging"`
}

func loadConfig(args []string) (*config, error) {
	cfg := &config{}
	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *config) notificationMode() core.NotificationMode {
	return core.NotificationMode(c.Notification)
}

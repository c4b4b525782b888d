// Package runtime holds the configuration surfaces shared by the triage
// binaries, parsed with go-flags from flags and environment.
package runtime

import (
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/triagekit/triage/go/broker"
)

// BrokerConfig locates the Redis-compatible store backing the broker.
type BrokerConfig struct {
	URL       string `long:"url" env:"URL" default:"redis://localhost:6379/0" description:"Broker connection URL"`
	KeyPrefix string `long:"key-prefix" env:"KEY_PREFIX" default:"mvr" description:"Namespace prefix of all broker keys"`
}

// MustDial builds a Broker over the configured store, or exits.
func (c *BrokerConfig) MustDial() *broker.Broker {
	var opts, err = redis.ParseURL(c.URL)
	if err != nil {
		log.WithFields(log.Fields{"err": err, "url": c.URL}).Fatal("failed to parse broker URL")
	}
	return broker.New(redis.NewClient(opts), broker.DefaultKeys(c.KeyPrefix))
}

// APIConfig configures the HTTP surface of triage-api.
type APIConfig struct {
	Port string `long:"port" env:"PORT" default:"8080" description:"Port to serve the HTTP API on"`
}

// WorkerConfig configures the triage-worker processing pool.
type WorkerConfig struct {
	Concurrency    int    `long:"concurrency" env:"CONCURRENCY" default:"4" description:"Number of concurrent processing loops"`
	DequeueTimeout string `long:"dequeue-timeout" env:"DEQUEUE_TIMEOUT" default:"5s" description:"Blocking-pop poll timeout"`
}

// NotifyConfig configures the outbound high-urgency webhook.
type NotifyConfig struct {
	WebhookURL string  `long:"webhook-url" env:"WEBHOOK_URL" default:"" description:"Slack incoming-webhook URL; unset suppresses outbound calls"`
	Threshold  float64 `long:"threshold" env:"THRESHOLD" default:"0.8" description:"Urgency score above which tickets are notified"`
}

// LogConfig configures process logging.
type LogConfig struct {
	Level  string `long:"level" env:"LEVEL" default:"info" choice:"trace" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Logging level"`
	Format string `long:"format" env:"FORMAT" default:"text" choice:"text" choice:"json" description:"Logging output format"`
}

// InitLog configures the logrus standard logger from LogConfig.
func InitLog(cfg LogConfig) {
	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
	var level, err = log.ParseLevel(cfg.Level)
	if err != nil {
		log.WithField("level", cfg.Level).Fatal("unrecognized log level")
	}
	log.SetLevel(level)
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"

	"github.com/triagekit/triage/go/ingest"
	"github.com/triagekit/triage/go/runtime"
)

// Config is the top-level configuration object of the triage API server.
var Config = new(struct {
	API    runtime.APIConfig    `group:"API" namespace:"api" env-namespace:"API"`
	Broker runtime.BrokerConfig `group:"Broker" namespace:"broker" env-namespace:"BROKER"`
	Log    runtime.LogConfig    `group:"Logging" namespace:"log" env-namespace:"LOG"`
})

type cmdServe struct{}

func (cmdServe) Execute(_ []string) error {
	runtime.InitLog(Config.Log)
	log.WithField("config", Config).Info("triage-api configuration")

	var b = Config.Broker.MustDial()
	var srv = &http.Server{
		Addr:    ":" + Config.API.Port,
		Handler: ingest.NewAPI(b, ingest.NewIngester(b)),
	}

	var signalCh = make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		var sig = <-signalCh
		log.WithField("signal", sig).Info("caught signal")

		var ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.WithField("err", err).Warn("graceful shutdown failed")
		}
	}()

	log.WithField("port", Config.API.Port).Info("starting triage-api")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("goodbye")
	return nil
}

func main() {
	var parser = flags.NewParser(Config, flags.Default)

	_, _ = parser.AddCommand("serve", "Serve the triage HTTP API", `
Serve ticket ingestion and consumption over HTTP with the provided
configuration, until signaled to exit (via SIGTERM).
`, &cmdServe{})

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"

	"github.com/triagekit/triage/go/agents"
	"github.com/triagekit/triage/go/breaker"
	"github.com/triagekit/triage/go/classify"
	"github.com/triagekit/triage/go/dedup"
	"github.com/triagekit/triage/go/notify"
	"github.com/triagekit/triage/go/runtime"
	"github.com/triagekit/triage/go/worker"
)

// Config is the top-level configuration object of the triage worker.
var Config = new(struct {
	Worker runtime.WorkerConfig `group:"Worker" namespace:"worker" env-namespace:"WORKER"`
	Broker runtime.BrokerConfig `group:"Broker" namespace:"broker" env-namespace:"BROKER"`
	Notify runtime.NotifyConfig `group:"Notify" namespace:"notify" env-namespace:"NOTIFY"`
	Log    runtime.LogConfig    `group:"Logging" namespace:"log" env-namespace:"LOG"`
})

type cmdServe struct{}

func (cmdServe) Execute(_ []string) error {
	runtime.InitLog(Config.Log)
	log.WithField("config", Config).Info("triage-worker configuration")

	var timeout, err = time.ParseDuration(Config.Worker.DequeueTimeout)
	if err != nil {
		return fmt.Errorf("parsing dequeue timeout: %w", err)
	}

	var notifier = notify.NewSlackNotifier(Config.Notify.WebhookURL)
	notifier.Threshold = Config.Notify.Threshold
	if Config.Notify.WebhookURL != "" {
		log.Info("webhook: configured")
	} else {
		log.Info("webhook: not set; high-urgency notifications are logged only")
	}

	// The breaker, dedup window, and agent registry are shared by every
	// loop in this process; across processes each worker has its own view.
	var w = &worker.Worker{
		Broker:         Config.Broker.MustDial(),
		Scorer:         classify.KeywordScorer{},
		Breaker:        breaker.New(),
		Window:         dedup.NewWindow(dedup.HashingEmbedder{}),
		Agents:         agents.DefaultRegistry(),
		Notifier:       notifier,
		DequeueTimeout: timeout,
	}

	var ctx, cancel = context.WithCancel(context.Background())
	defer cancel()

	var signalCh = make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		var sig = <-signalCh
		log.WithField("signal", sig).Info("caught signal")
		cancel()
	}()

	log.WithField("concurrency", Config.Worker.Concurrency).Info("starting triage-worker")

	var wg sync.WaitGroup
	for i := 0; i < Config.Worker.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithField("err", err).Error("worker loop failed")
			}
		}()
	}
	wg.Wait()

	log.Info("goodbye")
	return nil
}

func main() {
	var parser = flags.NewParser(Config, flags.Default)

	_, _ = parser.AddCommand("serve", "Run triage processing workers", `
Consume the ticket queue and process tickets with the provided
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

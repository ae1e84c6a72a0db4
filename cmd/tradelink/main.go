package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"tradelink/config"
	"tradelink/pkg/broker"
	"tradelink/pkg/broker/feed"
	fixtransport "tradelink/pkg/broker/fix"
	"tradelink/pkg/logging"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		panic(err)
	}

	log, err := logging.Init(cfg.Logging, cfg.ServiceName)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatalw("invalid config", "err", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	transport := fixtransport.New(cfg.Fix)
	client := broker.NewClient(cfg.Broker.ToBroker(), transport)

	// the venue may not be up yet when we are; retry the initial connect
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 10)
	err = backoff.Retry(func() error {
		return client.EnsureConnected(ctx)
	}, policy)
	if err != nil {
		log.Fatalw("connect", "err", err)
	}
	log.Infow("connected", "host", cfg.Broker.Host, "port", cfg.Broker.Port)

	var publisher *feed.Publisher
	if cfg.Feed != nil {
		publisher, err = feed.NewPublisher(*cfg.Feed, client.Hub(), log)
		if err != nil {
			log.Fatalw("start feed publisher", "err", err)
		}
		log.Infow("feed publisher started", "subject", cfg.Feed.Subject)
	}

	<-sigs
	log.Info("shutting down")
	cancel()

	if publisher != nil {
		publisher.Close()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := client.Disconnect(shutdownCtx); err != nil {
		log.Warnw("disconnect", "err", err)
	}

	_ = zap.L().Sync()
	log.Info("exited cleanly")
}

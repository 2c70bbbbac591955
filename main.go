package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"hermannm.dev/devlog"
	"hermannm.dev/devlog/log"
	"hermannm.dev/summarytable/api"
	"hermannm.dev/summarytable/config"
	"hermannm.dev/summarytable/db"
	"hermannm.dev/summarytable/db/clickhouse"
	"hermannm.dev/summarytable/db/elasticsearch"
	"hermannm.dev/summarytable/db/remoteapi"
	"hermannm.dev/summarytable/registry"
	"hermannm.dev/wrap"
)

func main() {
	var logLevel slog.LevelVar
	logLevel.Set(slog.LevelDebug)
	logHandler := devlog.NewHandler(os.Stdout, &devlog.Options{Level: &logLevel})
	slog.SetDefault(slog.New(logHandler))

	conf, err := config.ReadFromEnv()
	if err != nil {
		log.ErrorCause(err, "failed to read config from env")
		os.Exit(1)
	}
	if conf.IsProduction {
		logLevel.Set(slog.LevelInfo)
	}

	fieldRegistry, err := registry.NewHMDA()
	if err != nil {
		log.ErrorCause(err, "invalid field registry")
		os.Exit(1)
	}

	summaryDB, err := initializeSummaryDB(conf)
	if err != nil {
		log.ErrorCause(err, "failed to initialize summary backend")
		os.Exit(1)
	}
	if closer, ok := summaryDB.(io.Closer); ok {
		defer closer.Close()
	}
	log.Infof("using summary backend '%s'", conf.Backend)

	summaryAPI, err := api.NewSummaryAPI(conf, fieldRegistry, summaryDB)
	if err != nil {
		log.ErrorCause(err, "failed to initialize API")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := summaryAPI.ListenAndServe(ctx); err != nil {
		log.ErrorCause(err, "server stopped")
	}
}

func initializeSummaryDB(conf config.Config) (db.SummaryDB, error) {
	switch conf.Backend {
	case config.BackendRemoteAPI:
		client := &http.Client{Timeout: conf.Query.Timeout}
		remoteAPI, err := remoteapi.NewRemoteAPI(conf, client)
		if err != nil {
			return nil, wrap.Error(err, "failed to initialize remote API client")
		}
		return remoteAPI, nil
	case config.BackendClickHouse:
		clickhouseDB, err := clickhouse.NewClickHouseDB(conf)
		if err != nil {
			return nil, err
		}
		return clickhouseDB, nil
	case config.BackendElasticsearch:
		elasticDB, err := elasticsearch.NewElasticsearchDB(conf)
		if err != nil {
			return nil, err
		}
		return elasticDB, nil
	default:
		return nil, fmt.Errorf("unsupported summary backend '%s'", conf.Backend)
	}
}

// Command finboard-refresh queues a data refresh for a running finboard
// server, e.g. from cron or a spreadsheet change hook.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"finboard/internal/amqp"
	"finboard/internal/cli"
	flog "finboard/internal/log"
)

func main() {
	reason := flag.String("reason", "cli", "reason recorded with the refresh request")
	timeout := flag.Duration("timeout", 10*time.Second, "time allowed to connect and publish")
	flag.Parse()

	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg)

	if !cfg.AMQPEnabled() {
		fmt.Fprintln(os.Stderr, "AMQP_URL is not set; use POST /refresh-data on the server instead")
		os.Exit(2)
	}

	id, err := publish(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, *reason, *timeout, logger)
	if err != nil {
		logger.Error("Failed to queue refresh", flog.FieldError, err)
		os.Exit(1)
	}
	fmt.Println(id)
}

func publish(url, exchange, queue, reason string, timeout time.Duration, logger *slog.Logger) (string, error) {
	client, err := amqp.NewClient(url, exchange, queue, logger)
	if err != nil {
		return "", err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req := amqp.NewRefreshRequest(reason)
	if err := client.PublishRefresh(ctx, req); err != nil {
		return "", err
	}
	return req.ID, nil
}

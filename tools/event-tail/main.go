// Command event-tail follows the outbox topic and prints every business event once,
// as one JSON object per line on stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ledgerforge/ledgerforge/libs/config"
	otelx "github.com/ledgerforge/ledgerforge/libs/otel"
	"github.com/ledgerforge/ledgerforge/libs/runtime"
	"github.com/ledgerforge/ledgerforge/tools/event-tail/internal/consumer"
	"github.com/ledgerforge/ledgerforge/tools/event-tail/internal/inbox"
)

func main() {
	var (
		brokers = flag.String("brokers", config.String("KAFKA_BROKERS", "localhost:9092"), "comma separated kafka brokers")
		topic   = flag.String("topic", config.String("KAFKA_TOPIC", "ledger.external-events"), "outbox topic")
		group   = flag.String("group", config.String("KAFKA_GROUP_ID", "event-tail"), "consumer group id")
		dsn     = flag.String("inbox", config.String("INBOX_DSN", ":memory:"), "sqlite dsn remembering seen events")
		tenant  = flag.String("tenant", "", "only print events of this tenant")
		types   = flag.String("types", "", "comma separated event types to print")
	)
	flag.Parse()

	logger := runtime.NewLoggerTo(os.Stderr, "event-tail")
	ctx, stop := runtime.SignalContext(context.Background())
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv("event-tail"))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	ib, err := inbox.Open(ctx, *dsn)
	if err != nil {
		fatal(err.Error())
	}
	defer ib.Close()

	filter := consumer.Filter{TenantID: *tenant}
	for _, t := range strings.Split(*types, ",") {
		if t = strings.TrimSpace(t); t != "" {
			if filter.Types == nil {
				filter.Types = map[string]bool{}
			}
			filter.Types[t] = true
		}
	}

	reader := consumer.NewKafkaReader(consumer.Config{Brokers: *brokers, GroupID: *group, Topic: *topic})
	logger.Info("tailing", "topic", *topic, "group", *group)
	consumer.New(logger, reader, ib, consumer.Printer(os.Stdout, filter)).Run(ctx)
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/hyp3rd/kvs"
	"github.com/hyp3rd/kvs/pkg/middleware"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats := kvs.NewStatsCollector()

	cfg := kvs.NewConfig("127.0.0.1:7000", "127.0.0.1:7001", "127.0.0.1:7002")
	cfg.ClusterOptions = append(cfg.ClusterOptions,
		kvs.WithStatsCollector(stats),
		kvs.WithManagementHTTP("127.0.0.1:9090"),
	)

	cluster, err := kvs.NewCluster(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)

		return
	}

	logger := log.Default()

	// apply middleware in the same order as you want to execute them
	svc := kvs.ApplyMiddleware(cluster,
		func(next kvs.Service) kvs.Service {
			return middleware.NewLoggingMiddleware(next, logger)
		},
		func(next kvs.Service) kvs.Service {
			return middleware.NewStatsCollectorMiddleware(next, stats)
		},
	)
	defer svc.Close()

	for i := range 10 {
		err := svc.Set(ctx, fmt.Sprintf("key%v", i), fmt.Sprintf("val%v", i))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}

	items, errs := cluster.GetMultiple(ctx, "key1", "key7", "key9", "key9999")
	for k, e := range errs {
		fmt.Fprintf(os.Stderr, "error fetching item %s: %s\n", k, e)
	}

	for k, v := range items {
		fmt.Fprintln(os.Stdout, k, v, "from", cluster.Owner(k))
	}

	fmt.Fprintln(os.Stdout, "management endpoint:", cluster.ManagementHTTPAddress())
	fmt.Fprintf(os.Stdout, "%+v\n", stats.GetStats())
}

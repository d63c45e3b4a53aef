package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"datacleanse/pkg/cleaning"
	"datacleanse/pkg/objstore"
	"datacleanse/pkg/queue"
	"datacleanse/process/worker"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func mustDBFromEnv() *gorm.DB {
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN not set in env")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	return gdb
}

// Processing worker: consumes dataset jobs from the broker and runs
// fetch -> decode -> clean -> persist. Each consumer handles one job at a
// time (prefetch 1); scale out with -workers or more processes.
func main() {
	workers := flag.Int("workers", 1, "number of independent queue consumers")
	flag.Parse()

	gdb := mustDBFromEnv()

	base := os.Getenv("UPLOAD_BASE")
	store, err := objstore.NewDisk(base)
	if err != nil {
		log.Fatalf("object store init: %v", err)
	}

	amqpURL := os.Getenv("AMQP_URL")
	if amqpURL == "" {
		amqpURL = "amqp://localhost"
	}
	q, err := queue.DialAMQP(amqpURL, 5*time.Second)
	if err != nil {
		log.Fatalf("connect broker %s: %v", amqpURL, err)
	}
	defer q.Close()

	w := worker.New(gdb, store, cleaning.NewRules())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("worker waiting for jobs on %s (consumers=%d)", queue.QueueName, *workers)
	var wg sync.WaitGroup
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for {
				err := q.Consume(ctx, w.Handle)
				if ctx.Err() != nil {
					return
				}
				log.Printf("WARN consumer %d stopped: %v (restarting)", n, err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(5 * time.Second):
				}
			}
		}(i)
	}
	wg.Wait()
	log.Println("worker shutting down")
}

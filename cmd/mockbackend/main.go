package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cinder/storyboard/internal/config"
	"github.com/cinder/storyboard/internal/mockbackend"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	app := mockbackend.New(mockbackend.Options{
		Latency:   time.Duration(cfg.Mock.LatencyMs) * time.Millisecond,
		FailRate:  cfg.Mock.FailRate,
		PublicURL: cfg.Mock.PublicURL,
	}).App()

	go func() {
		addr := ":" + cfg.Mock.Port
		log.Printf("Mock story backend starting on %s (latency=%dms, failRate=%.2f)", addr, cfg.Mock.LatencyMs, cfg.Mock.FailRate)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("Failed to start mock backend: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down mock backend...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Mock backend shutdown error: %v", err)
	}
}

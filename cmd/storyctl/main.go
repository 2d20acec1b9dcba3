package main

import (
	"log"

	"github.com/cinder/storyboard/internal/cli"
	"github.com/cinder/storyboard/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	cli.Execute(cli.NewApp(&cfg.Backend))
}

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chainscope/bridge-sentinel/pkg/app/sentinel"
	"github.com/chainscope/bridge-sentinel/pkg/config"
)

var configPath = flag.String("config", "config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := sentinel.NewServer(cfg).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Sentinel exited with error: %v\n", err)
		os.Exit(1)
	}
}

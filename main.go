// wearlink-blue is the phone-side daemon: it serves the Media Control
// and Telephone Bearer GATT services to a wearable, drives the
// connect/bond lifecycle, and bridges platform telephony/media events
// over the local feed socket.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/user/wearlink-blue/bearer"
	"github.com/user/wearlink-blue/config"
	"github.com/user/wearlink-blue/feed"
	"github.com/user/wearlink-blue/hwble"
	"github.com/user/wearlink-blue/logger"
	"github.com/user/wearlink-blue/session"
	"github.com/user/wearlink-blue/simble"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (defaults apply when empty)")
	hardwareUUID := flag.String("uuid", "", "hardware UUID for the simulated bearer (random when empty)")
	chipUUID := flag.String("chip", "", "wearable to connect to at startup")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	var b bearer.Bearer
	switch cfg.Bearer {
	case "hw":
		b = hwble.New(cfg.DeviceName)
	default:
		id := *hardwareUUID
		if id == "" {
			id = uuid.NewString()
		}
		logger.Info("Main", "simulated bearer, hardware UUID %s", id)
		b = simble.New(id, cfg.DeviceName)
	}

	feedSrv := feed.NewServer(cfg.Feed.SocketPath)
	sess := session.New(cfg, b, feedSrv)
	feedSrv.SetController(sess)

	if err := feedSrv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "starting feed: %v\n", err)
		os.Exit(1)
	}
	sess.Start()

	if *chipUUID != "" {
		sess.Connect(*chipUUID)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	logger.Info("Main", "shutting down")
	sess.Stop()
	feedSrv.Stop()
}

// chipsim runs a standalone simulated wearable. It advertises, waits
// for a phone daemon to dial in, mirrors everything the phone notifies,
// and can replay canned control-point writes from stdin.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/user/wearlink-blue/chip"
	"github.com/user/wearlink-blue/logger"
	"github.com/user/wearlink-blue/mcs"
)

func main() {
	hardwareUUID := flag.String("uuid", "", "hardware UUID (random when empty)")
	name := flag.String("name", "WearLink Chip", "advertised local name")
	logLevel := flag.String("log-level", "debug", "trace|debug|info|warn|error")
	flag.Parse()

	logger.SetLevel(logger.ParseLevel(*logLevel))
	id := *hardwareUUID
	if id == "" {
		id = uuid.NewString()
	}

	c := chip.New(id, *name)
	if err := c.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "starting chip: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("chip %s advertising as %q\n", id, *name)
	fmt.Println("commands: accept | reject | end | play | pause | next | prev | quit")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	for {
		select {
		case <-sig:
			c.Stop()
			return
		case line, ok := <-lines:
			if !ok {
				<-sig
				c.Stop()
				return
			}
			if err := runCommand(c, line); err != nil {
				fmt.Fprintf(os.Stderr, "%v\n", err)
			}
			if line == "quit" {
				c.Stop()
				return
			}
		}
	}
}

func runCommand(c *chip.Chip, line string) error {
	switch line {
	case "", "quit":
		return nil
	case "accept":
		return c.AcceptCall()
	case "reject":
		return c.RejectCall()
	case "end":
		return c.EndCall()
	case "play":
		return c.SendMediaOpcode(mcs.OpPlay)
	case "pause":
		return c.SendMediaOpcode(mcs.OpPause)
	case "next":
		return c.SendMediaOpcode(mcs.OpNextTrack)
	case "prev":
		return c.SendMediaOpcode(mcs.OpPreviousTrack)
	default:
		return fmt.Errorf("unknown command %q", line)
	}
}

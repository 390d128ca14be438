// telctl pushes collaborator records into a running daemon's feed
// socket: media snapshots, telephony signals, caller-name hints, and
// connect/disconnect requests. "watch" tails the commands the daemon
// dispatches back.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/user/wearlink-blue/event"
	"github.com/user/wearlink-blue/feed"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: telctl [-socket path] <command> [flags]

commands:
  media    -title T [-artist A] [-album L] [-package P] [-playing] [-duration ms] [-position ms]
  call     -state IDLE|RINGING|OFFHOOK [-number N]
  name     -name N
  connect  -peer UUID
  disconnect
  watch
`)
	os.Exit(2)
}

func main() {
	socket := flag.String("socket", filepath.Join(os.TempDir(), "wearlink-feed.sock"), "feed socket path")
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)
	args := flag.Args()[1:]

	conn, err := net.Dial("unix", *socket)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dialing feed: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	if cmd == "watch" {
		watch(conn)
		return
	}

	rec, err := buildRecord(cmd, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		usage()
	}
	line, err := json.Marshal(rec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "encoding record: %v\n", err)
		os.Exit(1)
	}
	if _, err := conn.Write(append(line, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "writing record: %v\n", err)
		os.Exit(1)
	}
}

func buildRecord(cmd string, args []string) (*feed.Record, error) {
	switch cmd {
	case "media":
		fs := flag.NewFlagSet("media", flag.ExitOnError)
		title := fs.String("title", "", "track title")
		artist := fs.String("artist", "", "artist")
		album := fs.String("album", "", "album")
		pkg := fs.String("package", "", "source package name")
		playing := fs.Bool("playing", false, "playback active")
		duration := fs.Uint64("duration", 0, "track duration in ms")
		position := fs.Uint64("position", 0, "track position in ms")
		fs.Parse(args)
		return &feed.Record{Type: feed.TypeMedia, Media: &event.MediaMetadataUpdate{
			Title:         *title,
			Artist:        *artist,
			Album:         *album,
			SourcePackage: *pkg,
			IsPlaying:     *playing,
			DurationMs:    *duration,
			PositionMs:    *position,
			Timestamp:     time.Now(),
		}}, nil
	case "call":
		fs := flag.NewFlagSet("call", flag.ExitOnError)
		state := fs.String("state", "", "IDLE, RINGING or OFFHOOK")
		number := fs.String("number", "", "phone number")
		fs.Parse(args)
		switch event.TelephonyState(*state) {
		case event.TelephonyIdle, event.TelephonyRinging, event.TelephonyOffhook:
		default:
			return nil, fmt.Errorf("bad -state %q", *state)
		}
		return &feed.Record{Type: feed.TypeCall, Call: &event.CallSignal{
			State:       event.TelephonyState(*state),
			PhoneNumber: *number,
			Timestamp:   time.Now(),
		}}, nil
	case "name":
		fs := flag.NewFlagSet("name", flag.ExitOnError)
		name := fs.String("name", "", "caller name")
		fs.Parse(args)
		if *name == "" {
			return nil, fmt.Errorf("-name required")
		}
		return &feed.Record{Type: feed.TypeNameHint, Name: *name}, nil
	case "connect":
		fs := flag.NewFlagSet("connect", flag.ExitOnError)
		peer := fs.String("peer", "", "wearable UUID")
		fs.Parse(args)
		if *peer == "" {
			return nil, fmt.Errorf("-peer required")
		}
		return &feed.Record{Type: feed.TypeConnect, Peer: *peer}, nil
	case "disconnect":
		return &feed.Record{Type: feed.TypeDisconnect}, nil
	default:
		return nil, fmt.Errorf("unknown command %q", cmd)
	}
}

func watch(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var rec feed.Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		fmt.Printf("%s %s\n", rec.Type, rec.Command)
	}
}

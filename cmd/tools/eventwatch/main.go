package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/soltixdb/unistor/internal/config"
	"github.com/soltixdb/unistor/internal/events"
	"github.com/soltixdb/unistor/internal/queue"
)

// eventwatch tails forwarded registry events from the broker and prints them
// as JSON lines or CSV rows.
func main() {
	configPath := flag.String("config", "", "Path to configuration file (queue and events sections)")
	format := flag.String("format", "json", "Output format (json, csv)")
	nodeFilter := flag.String("node", "", "Only print events for this node (optional)")
	flag.Parse()

	if *format != "json" && *format != "csv" {
		log.Fatalf("Error: unsupported format '%s' (json, csv)\n", *format)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Error: failed to load config: %v\n", err)
	}

	codec, err := events.NewCodec(cfg.Events.Codec, cfg.Events.Compress)
	if err != nil {
		log.Fatalf("Error: %v\n", err)
	}

	sub, err := queue.NewSubscriber(cfg.Queue)
	if err != nil {
		log.Fatalf("Error: failed to connect to queue: %v\n", err)
	}

	out := newPrinter(*format)
	for _, t := range events.AllTypes {
		subject := events.Subject(cfg.Events.SubjectPrefix, t)
		err := sub.Subscribe(subject, func(data []byte) error {
			e, err := codec.Decode(data)
			if err != nil {
				// undecodable payloads are acknowledged and skipped
				fmt.Fprintf(os.Stderr, "skip %s: %v\n", subject, err)
				return nil
			}
			if *nodeFilter != "" && e.NodeID != *nodeFilter {
				return nil
			}
			out.print(e)
			return nil
		})
		if err != nil {
			log.Fatalf("Error: failed to subscribe to %s: %v\n", subject, err)
		}
	}

	fmt.Fprintf(os.Stderr, "Watching %s.* on %s (%s codec)\n",
		cfg.Events.SubjectPrefix, cfg.Queue.Type, codec.ContentType())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	// no handler may run once the printer channel closes
	_ = sub.Close()
	out.flush()
}

type printer struct {
	format string
	csv    *csv.Writer
	enc    *json.Encoder
	ch     chan events.Event
	done   chan struct{}
}

// newPrinter serializes output through one goroutine since broker handlers
// may run concurrently
func newPrinter(format string) *printer {
	p := &printer{
		format: format,
		ch:     make(chan events.Event, 256),
		done:   make(chan struct{}),
	}
	if format == "csv" {
		p.csv = csv.NewWriter(os.Stdout)
		_ = p.csv.Write([]string{"timestamp", "type", "node_id", "drive_id", "shard", "generation", "tier", "previous_tier", "score", "alert"})
		p.csv.Flush()
	} else {
		p.enc = json.NewEncoder(os.Stdout)
	}
	go p.loop()
	return p
}

func (p *printer) print(e events.Event) {
	p.ch <- e
}

func (p *printer) loop() {
	defer close(p.done)
	for e := range p.ch {
		if p.csv != nil {
			_ = p.csv.Write([]string{
				e.Timestamp.UTC().Format(time.RFC3339Nano),
				string(e.Type),
				e.NodeID,
				e.DriveID,
				strconv.Itoa(e.Shard),
				strconv.FormatUint(e.Generation, 10),
				string(e.Tier),
				string(e.PreviousTier),
				strconv.Itoa(e.Score),
				e.Alert,
			})
			p.csv.Flush()
			continue
		}
		_ = p.enc.Encode(e)
	}
}

func (p *printer) flush() {
	close(p.ch)
	<-p.done
}

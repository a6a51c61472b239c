package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/annel0/voxel-creatures/internal/api"
	"github.com/annel0/voxel-creatures/internal/eventbus"
	"github.com/annel0/voxel-creatures/internal/simulation"
	"github.com/annel0/voxel-creatures/internal/storage"
)

const (
	defaultNatsURL = "nats://127.0.0.1:4222"
	defaultAPIAddr = "http://localhost:8088"
)

func main() {
	var (
		command    = flag.String("cmd", "tail", "Command: tail, ticks, snapshot")
		natsURL    = flag.String("nats", defaultNatsURL, "NATS server URL")
		stream     = flag.String("stream", "CREATURES", "JetStream stream name")
		apiAddr    = flag.String("api", defaultAPIAddr, "Debug API base URL")
		eventTypes = flag.String("types", "", "Event types filter (comma-separated)")
		tick       = flag.Uint64("tick", 0, "Tick for snapshot command")
		limit      = flag.Int("limit", 100, "Maximum number of events")
		follow     = flag.Bool("follow", false, "Follow new events (like tail -f)")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch *command {
	case "tail":
		err = tailEvents(ctx, os.Stdout, &TailOptions{
			NatsURL:    *natsURL,
			Stream:     *stream,
			EventTypes: parseStringList(*eventTypes),
			Limit:      *limit,
			Follow:     *follow,
		})
	case "ticks":
		err = showTicks(ctx, os.Stdout, *apiAddr)
	case "snapshot":
		err = showSnapshot(ctx, os.Stdout, *apiAddr, *tick)
	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, ticks, snapshot")
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("❌ %s failed: %v", *command, err)
	}
}

type TailOptions struct {
	NatsURL    string
	Stream     string
	EventTypes []string
	Limit      int
	Follow     bool
}

// tailEvents выводит события существ из JetStream
func tailEvents(ctx context.Context, w io.Writer, opts *TailOptions) error {
	fmt.Fprintf(w, "🎬 Tailing creature events (limit: %d, follow: %v)\n", opts.Limit, opts.Follow)

	bus, err := eventbus.NewJetStreamBus(eventbus.JetStreamOptions{URL: opts.NatsURL, Stream: opts.Stream})
	if err != nil {
		return err
	}
	defer bus.Close()

	received := make(chan *eventbus.Envelope, 64)
	sub, err := bus.Subscribe(ctx, eventbus.Filter{Types: opts.EventTypes}, func(_ context.Context, ev *eventbus.Envelope) {
		select {
		case received <- ev:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	// Без follow выходим, когда поток затих
	idle := time.NewTimer(2 * time.Second)
	defer idle.Stop()

	eventCount := 0
	for opts.Follow || eventCount < opts.Limit {
		select {
		case ev := <-received:
			printEvent(w, ev)
			eventCount++
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(2 * time.Second)
		case <-idle.C:
			if !opts.Follow {
				fmt.Fprintf(w, "\n📊 Total events: %d\n", eventCount)
				return nil
			}
			idle.Reset(2 * time.Second)
		case <-ctx.Done():
			fmt.Fprintf(w, "\n📊 Total events: %d\n", eventCount)
			return nil
		}
	}

	fmt.Fprintf(w, "\n📊 Total events: %d\n", eventCount)
	return nil
}

// showTicks выводит тики, сохранённые в архиве сервера
func showTicks(ctx context.Context, w io.Writer, apiAddr string) error {
	var ticks []uint64
	if err := getJSON(ctx, apiAddr+"/api/history", &ticks); err != nil {
		return err
	}
	fmt.Fprintf(w, "📋 Archived ticks: %d\n", len(ticks))
	for _, t := range ticks {
		fmt.Fprintf(w, "  %d\n", t)
	}
	return nil
}

// showSnapshot выводит архивный снимок тика, сгруппированный по видам
func showSnapshot(ctx context.Context, w io.Writer, apiAddr string, tick uint64) error {
	var rec storage.Record
	if err := getJSON(ctx, fmt.Sprintf("%s/api/history/%d", apiAddr, tick), &rec); err != nil {
		return err
	}
	printRecord(w, rec)
	return nil
}

func getJSON(ctx context.Context, url string, data interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body := api.GenericResponse{Data: data}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	if !body.Success {
		return fmt.Errorf("%s: %s (HTTP %d)", url, body.Message, resp.StatusCode)
	}
	return nil
}

// printEvent выводит событие в читаемом формате
func printEvent(w io.Writer, ev *eventbus.Envelope) {
	fmt.Fprintf(w, "[%s] %s [%s] %s\n",
		ev.Timestamp.Format("15:04:05"),
		ev.Source,
		ev.EventType,
		ev.ID)

	// Добавляем детали в зависимости от типа события
	switch ev.EventType {
	case simulation.EventSpawn:
		var e simulation.SpawnEvent
		if ev.Decode(&e) == nil {
			fmt.Fprintf(w, "  %s #%d at (%.1f, %.1f, %.1f)\n", e.Species, e.ID, e.Position.X, e.Position.Y, e.Position.Z)
		}
	case simulation.EventAttack:
		var e simulation.AttackEvent
		if ev.Decode(&e) == nil {
			fmt.Fprintf(w, "  %s #%d -> %s #%d: -%.1f (health %.1f)\n",
				e.AttackerSpecies, e.Attacker, e.TargetSpecies, e.Target, e.Damage, e.TargetHealth)
		}
	case simulation.EventDeath:
		var e simulation.DeathEvent
		if ev.Decode(&e) == nil {
			fmt.Fprintf(w, "  %s #%d died at tick %d\n", e.Species, e.ID, e.Tick)
		}
	}
}

func printRecord(w io.Writer, rec storage.Record) {
	fmt.Fprintf(w, "🗄️ Tick %d (%s): %d creatures\n", rec.Tick, rec.Time.Format(time.RFC3339), len(rec.Entities))

	bySpecies := make(map[string]int)
	for _, p := range rec.Entities {
		bySpecies[p.Species]++
	}
	names := make([]string, 0, len(bySpecies))
	for name := range bySpecies {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s: %d\n", name, bySpecies[name])
	}
	for _, p := range rec.Entities {
		fmt.Fprintf(w, "  #%d %-8s %-5s (%.1f, %.1f, %.1f) hp=%.1f\n",
			p.ID, p.Species, p.State, p.Position.X, p.Position.Y, p.Position.Z, p.Health)
	}
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

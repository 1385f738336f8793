// Command privacyshield-bench times the analysis pipeline on one text.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/privacyshield/privacyshield/internal/app"
	"github.com/privacyshield/privacyshield/internal/config"
)

func main() {
	cfgPath := flag.String("config", "privacyshield.yaml", "path to config yaml")
	n := flag.Int("n", 200, "number of iterations")
	text := flag.String("text", "My name is Priya Sharma, I live in Pune and my email is priya.sharma@example.com.", "text to analyze")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()
	a, err := app.Build(ctx, cfg, app.Options{Version: "bench", Offline: true})
	if err != nil {
		log.Fatalf("build pipeline: %v", err)
	}
	defer a.Close(ctx)

	// Warmup
	for i := 0; i < 5; i++ {
		if _, err := a.Engine.Analyze(ctx, *text, ""); err != nil {
			log.Fatalf("warmup analyze failed: %v", err)
		}
	}

	if *n <= 0 {
		*n = 1
	}

	var entities int
	durations := make([]time.Duration, 0, *n)
	for i := 0; i < *n; i++ {
		start := time.Now()
		res, err := a.Engine.Analyze(ctx, *text, "")
		if err != nil {
			log.Fatalf("analyze failed: %v", err)
		}
		durations = append(durations, time.Since(start))
		entities = len(res.Entities)
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	var total time.Duration
	for _, d := range durations {
		total += d
	}

	avg := float64(total.Microseconds()) / 1000.0 / float64(len(durations))
	p50 := float64(durations[len(durations)/2].Microseconds()) / 1000.0
	p95 := float64(durations[int(float64(len(durations))*0.95)].Microseconds()) / 1000.0

	fmt.Printf("bench: n=%d avg_ms=%.2f p50_ms=%.2f p95_ms=%.2f entities=%d detectors=%v\n",
		len(durations),
		avg,
		p50,
		p95,
		entities,
		a.Detectors.Members(),
	)
}

package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"github.com/Wikid82/jailkeeper/internal/config"
	"github.com/Wikid82/jailkeeper/internal/database"
	"github.com/Wikid82/jailkeeper/internal/models"
	"github.com/Wikid82/jailkeeper/internal/services"
)

var (
	seedJails = []string{"sshd", "nginx-404", "nginx-botsearch", "postfix-sasl", "recidive"}
	// documentation ranges only
	seedNetworks = []string{"192.0.2.", "198.51.100.", "203.0.113."}
)

// demoEvents builds count ban/unban pairs spread over the last days days.
// A small pool of addresses makes some of them repeat offenders.
func demoEvents(rng *rand.Rand, now time.Time, days, count int) []models.BanEvent {
	pool := make([]string, 0, 24)
	for i := 0; i < 24; i++ {
		pool = append(pool, fmt.Sprintf("%s%d", seedNetworks[i%len(seedNetworks)], 10+i))
	}
	banSeconds := int64(3600)

	events := make([]models.BanEvent, 0, count*2)
	for i := 0; i < count; i++ {
		// square the draw so the first addresses dominate
		idx := int(float64(len(pool)) * rng.Float64() * rng.Float64())
		ts := now.Add(-time.Duration(rng.Int64N(int64(days) * int64(24*time.Hour)))).Truncate(time.Second)
		ip, jail := pool[idx], seedJails[rng.IntN(len(seedJails))]
		dur := banSeconds
		events = append(events,
			models.BanEvent{Timestamp: ts, IP: ip, Jail: jail, Action: models.ActionBan, DurationSeconds: &dur, Source: models.SourceSeed},
			models.BanEvent{Timestamp: ts.Add(time.Hour), IP: ip, Jail: jail, Action: models.ActionUnban, Source: models.SourceSeed},
		)
	}
	return events
}

func main() {
	days := flag.Int("days", 14, "spread events over this many days")
	count := flag.Int("count", 300, "number of bans to generate")
	seed := flag.Uint64("seed", 42, "random seed")
	purge := flag.Bool("purge", false, "delete existing history first")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	db, err := database.Open(cfg.DatabasePath, false)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	history := services.NewHistoryService(db)

	if *purge {
		n, err := history.Purge(nil)
		if err != nil {
			log.Fatalf("purge history: %v", err)
		}
		fmt.Printf("✓ Removed %d existing events\n", n)
	}

	rng := rand.New(rand.NewPCG(*seed, *seed))
	events := demoEvents(rng, time.Now(), *days, *count)
	for i := range events {
		if err := history.Append(&events[i]); err != nil {
			log.Fatalf("append event: %v", err)
		}
	}
	fmt.Printf("✓ Seeded %d events into %s\n", len(events), cfg.DatabasePath)

	whitelist := services.NewWhitelistService(cfg.WhitelistFile)
	if err := whitelist.AddGlobal("192.168.0.0/16", "LAN (seed)"); err != nil {
		fmt.Printf("  Whitelist entry not added: %v\n", err)
	} else {
		fmt.Println("✓ Whitelisted 192.168.0.0/16")
	}

	fmt.Println("\n✓ Seeding completed. Start the API or run `jailkeeper analytics top` to see the data.")
}

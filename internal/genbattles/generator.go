// Package genbattles generates a synthetic battle log for local runs and
// end-to-end tests.
//
// The population mixes behaviors on purpose: a fraction of players stop
// battling before the end of the window (future churners) and a fraction
// tends to requeue quickly after losing (tilters), so the downstream
// pipeline has signal to find.
package genbattles

import (
	"context"
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/arenalab/churnsight/pkg/logger"
)

// Default generation constants.
const (
	defaultPlayers       = 500
	defaultBattles       = 20000
	defaultWindowDays    = 30
	defaultChurnFraction = 0.3
	defaultTiltFraction  = 0.25
	defaultSeed          = 1

	churnCutoffFraction = 0.6 // churners stop after this fraction of the window
	fastRequeueMinutes  = 30
	normalGapHoursMax   = 12
	baseTrophies        = 3000
	trophySpread        = 2000
	trophyDelta         = 30
)

// Config controls the generated log.
type Config struct {
	Players       int
	Battles       int
	WindowDays    int
	ChurnFraction float64
	TiltFraction  float64
	Seed          int64
	OutPath       string
	Start         time.Time
}

// NewConfig returns a Config with defaults.
func NewConfig() *Config {
	return &Config{
		Players:       defaultPlayers,
		Battles:       defaultBattles,
		WindowDays:    defaultWindowDays,
		ChurnFraction: defaultChurnFraction,
		TiltFraction:  defaultTiltFraction,
		Seed:          defaultSeed,
		OutPath:       "battles.csv",
		Start:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// player is one synthetic participant's behavior profile.
type player struct {
	tag         string
	trophies    float64
	nextReady   time.Time
	activeUntil time.Time
	tilter      bool
	lastLost    bool
}

// Generate writes a synthetic battle log CSV compatible with the source
// scanner. Deterministic for a given Config.
func Generate(ctx context.Context, cfg *Config) error {
	lg := logger.Get().Named("genbattles")
	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // deterministic synthetic data

	windowEnd := cfg.Start.Add(time.Duration(cfg.WindowDays) * 24 * time.Hour)
	churnCutoff := cfg.Start.Add(time.Duration(float64(cfg.WindowDays)*churnCutoffFraction*24) * time.Hour)

	players := make([]*player, cfg.Players)
	for i := range players {
		p := &player{
			tag:         fmt.Sprintf("#%03d%05X", i, rng.Int63n(0xFFFFF)),
			trophies:    baseTrophies + rng.Float64()*trophySpread,
			nextReady:   cfg.Start.Add(time.Duration(rng.Int63n(int64(24 * time.Hour)))),
			activeUntil: windowEnd,
			tilter:      rng.Float64() < cfg.TiltFraction,
		}
		if rng.Float64() < cfg.ChurnFraction {
			p.activeUntil = churnCutoff
		}
		players[i] = p
	}

	f, err := os.Create(cfg.OutPath)
	if err != nil {
		return fmt.Errorf("create battle log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"battleTime",
		"winner.tag", "winner.startingTrophies", "winner.trophyChange", "winner.crowns",
		"loser.tag", "loser.startingTrophies", "loser.trophyChange", "loser.crowns",
		"gameMode.id", "arena.id",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	written := 0
	attempts := 0
	maxAttempts := cfg.Battles * 100
	for written < cfg.Battles && attempts < maxAttempts {
		attempts++
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		a := players[rng.Intn(len(players))]
		b := players[rng.Intn(len(players))]
		if a == b {
			continue
		}

		// Battle when both are ready; the later ready time wins.
		t := a.nextReady
		if b.nextReady.After(t) {
			t = b.nextReady
		}
		if t.After(a.activeUntil) || t.After(b.activeUntil) || t.After(windowEnd) {
			continue
		}

		winner, loser := a, b
		// Higher trophies win more often, with noise.
		if rng.Float64() < 0.5-(a.trophies-b.trophies)/(4*trophySpread) {
			winner, loser = b, a
		}

		row := []string{
			t.UTC().Format(time.RFC3339),
			winner.tag,
			strconv.FormatFloat(winner.trophies, 'f', 0, 64),
			strconv.Itoa(trophyDelta),
			strconv.Itoa(1 + rng.Intn(3)),
			loser.tag,
			strconv.FormatFloat(loser.trophies, 'f', 0, 64),
			strconv.Itoa(-trophyDelta),
			strconv.Itoa(rng.Intn(2)),
			"ladder",
			"arena-" + strconv.Itoa(1+rng.Intn(10)),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write battle: %w", err)
		}
		written++

		winner.trophies += trophyDelta
		loser.trophies -= trophyDelta
		winner.lastLost = false
		loser.lastLost = true

		winner.nextReady = t.Add(nextGap(rng, winner))
		loser.nextReady = t.Add(nextGap(rng, loser))
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush battle log: %w", err)
	}

	lg.Info(ctx, "battle log generated",
		logger.String("path", cfg.OutPath),
		logger.Int("battles", written),
		logger.Int("players", cfg.Players),
	)
	return nil
}

// nextGap returns the time until the player's next battle. Tilters requeue
// within minutes after a loss; everyone else spreads out over hours.
func nextGap(rng *rand.Rand, p *player) time.Duration {
	if p.tilter && p.lastLost {
		return time.Duration(1+rng.Int63n(fastRequeueMinutes)) * time.Minute
	}
	return time.Duration(1+rng.Int63n(normalGapHoursMax*60)) * time.Minute
}

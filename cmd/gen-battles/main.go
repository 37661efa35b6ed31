package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/arenalab/churnsight/internal/genbattles"
	"github.com/arenalab/churnsight/pkg/logger"
)

const generationTimeout = 10 * time.Minute

func main() {
	defaults := genbattles.NewConfig()
	var (
		players = flag.Int("players", defaults.Players, "Number of synthetic players")
		battles = flag.Int("battles", defaults.Battles, "Number of battles to generate")
		days    = flag.Int("days", defaults.WindowDays, "Observation window length in days")
		churn   = flag.Float64("churn", defaults.ChurnFraction, "Fraction of players that stop before the window ends")
		tilt    = flag.Float64("tilt", defaults.TiltFraction, "Fraction of players that requeue fast after losses")
		seed    = flag.Int64("seed", defaults.Seed, "Random seed")
		out     = flag.String("out", defaults.OutPath, "Output CSV path")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), generationTimeout)
	defer cancel()

	cfg := genbattles.NewConfig()
	cfg.Players = *players
	cfg.Battles = *battles
	cfg.WindowDays = *days
	cfg.ChurnFraction = *churn
	cfg.TiltFraction = *tilt
	cfg.Seed = *seed
	cfg.OutPath = *out

	if err := genbattles.Generate(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "generation failed", logger.Error(err))
		os.Exit(1)
	}
}

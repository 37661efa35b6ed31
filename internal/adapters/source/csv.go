package source

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/arenalab/churnsight/internal/domain/model"
	"github.com/arenalab/churnsight/pkg/logger"
	"github.com/arenalab/churnsight/pkg/metrics"
)

// Column names as they appear in the battle log header. The log carries
// 70+ columns; only these are decoded.
const (
	colWinnerTag      = "winner.tag"
	colLoserTag       = "loser.tag"
	colBattleTime     = "battleTime"
	colWinnerTrophies = "winner.startingTrophies"
	colWinnerChange   = "winner.trophyChange"
	colWinnerCrowns   = "winner.crowns"
	colLoserTrophies  = "loser.startingTrophies"
	colLoserChange    = "loser.trophyChange"
	colLoserCrowns    = "loser.crowns"
	colGameMode       = "gameMode.id"
	colArena          = "arena.id"
)

// Timestamp layouts observed in battle log exports.
var timeLayouts = []string{
	time.RFC3339,
	"20060102T150405.000Z",
	"2006-01-02 15:04:05",
}

const (
	defaultBatchSize = 8192
	readBufferSize   = 1 << 20
)

// CSVScanner streams a battle log CSV with column projection and
// deterministic sampling.
type CSVScanner struct {
	path       string
	batchSize  int
	sampleRate float64
	logger     logger.Logger
}

// Option applies a configuration option to the CSVScanner.
type Option func(*CSVScanner)

// WithBatchSize sets how many rows are decoded per batch.
func WithBatchSize(n int) Option {
	return func(s *CSVScanner) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithSampleRate sets the fraction of rows kept. Sampling hashes the raw
// row instead of drawing random numbers, so the same snapshot and rate
// always select the same rows.
func WithSampleRate(rate float64) Option {
	return func(s *CSVScanner) {
		if rate > 0 && rate <= 1 {
			s.sampleRate = rate
		}
	}
}

// WithLogger sets a custom logger for the scanner.
func WithLogger(l logger.Logger) Option {
	return func(s *CSVScanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewCSVScanner creates a scanner over the given battle log path.
func NewCSVScanner(path string, opts ...Option) *CSVScanner {
	s := &CSVScanner{
		path:       path,
		batchSize:  defaultBatchSize,
		sampleRate: 1.0,
		logger:     logger.Get().Named("source"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// columns maps the projected header names to their indices.
type columns struct {
	winnerTag, loserTag, battleTime            int
	winnerTrophies, winnerChange, winnerCrowns int
	loserTrophies, loserChange, loserCrowns    int
	gameMode, arena                            int
}

// Scan implements Scanner.
func (s *CSVScanner) Scan(ctx context.Context, fn BatchFunc) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOpenLog, err)
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReaderSize(f, readBufferSize))
	r.ReuseRecord = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("%w: reading header: %w", ErrOpenLog, err)
	}
	cols, err := mapColumns(header)
	if err != nil {
		return err
	}

	batch := make([]model.Battle, 0, s.batchSize)
	scanned := 0
	kept := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A mangled line is a malformed event, not a fatal scan error.
			metrics.RecordMalformedRow()
			continue
		}
		scanned++

		if s.sampleRate < 1 && !s.keep(record, cols) {
			continue
		}
		kept++

		batch = append(batch, decode(record, cols))
		if len(batch) == s.batchSize {
			if err := fn(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := fn(ctx, batch); err != nil {
			return err
		}
	}

	metrics.RecordBattlesScanned(scanned)
	metrics.RecordBattlesSampled(kept)

	s.logger.Info(ctx, "battle log scanned",
		logger.String("path", s.path),
		logger.Int("rows", scanned),
		logger.Int("kept", kept),
		logger.Float64("sample_rate", s.sampleRate),
	)
	return nil
}

// keep decides membership in the sample from a stable hash of the row's
// identifying fields.
func (s *CSVScanner) keep(record []string, cols columns) bool {
	h := fnv.New64a()
	h.Write([]byte(at(record, cols.winnerTag)))
	h.Write([]byte{0})
	h.Write([]byte(at(record, cols.loserTag)))
	h.Write([]byte{0})
	h.Write([]byte(at(record, cols.battleTime)))
	frac := float64(h.Sum64()) / float64(math.MaxUint64)
	return frac < s.sampleRate
}

func mapColumns(header []string) (columns, error) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}

	var missing []string
	get := func(name string) int {
		i, ok := idx[name]
		if !ok {
			missing = append(missing, name)
			return -1
		}
		return i
	}

	cols := columns{
		winnerTag:      get(colWinnerTag),
		loserTag:       get(colLoserTag),
		battleTime:     get(colBattleTime),
		winnerTrophies: get(colWinnerTrophies),
		winnerChange:   get(colWinnerChange),
		winnerCrowns:   get(colWinnerCrowns),
		loserTrophies:  get(colLoserTrophies),
		loserChange:    get(colLoserChange),
		loserCrowns:    get(colLoserCrowns),
		gameMode:       get(colGameMode),
		arena:          get(colArena),
	}
	if len(missing) > 0 {
		return columns{}, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return cols, nil
}

// decode builds a Battle from one record. Unparseable timestamps yield a
// zero Time; the timeline builder drops and counts those rows.
func decode(record []string, cols columns) model.Battle {
	return model.Battle{
		WinnerTag:      at(record, cols.winnerTag),
		LoserTag:       at(record, cols.loserTag),
		Time:           parseTime(at(record, cols.battleTime)),
		WinnerTrophies: parseFloat(at(record, cols.winnerTrophies)),
		WinnerChange:   parseFloat(at(record, cols.winnerChange)),
		WinnerCrowns:   parseFloat(at(record, cols.winnerCrowns)),
		LoserTrophies:  parseFloat(at(record, cols.loserTrophies)),
		LoserChange:    parseFloat(at(record, cols.loserChange)),
		LoserCrowns:    parseFloat(at(record, cols.loserCrowns)),
		GameMode:       at(record, cols.gameMode),
		Arena:          at(record, cols.arena),
	}
}

func at(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

package speech

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
)

// Stats aggregates synthesis counters since the engine was created.
type Stats struct {
	Syntheses     int
	Failures      int
	TotalBytes    uint64
	TotalDuration time.Duration
}

// AverageDuration returns the mean synthesis time.
func (s Stats) AverageDuration() time.Duration {
	if s.Syntheses == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.Syntheses)
}

// String summarizes the stats on one line.
func (s Stats) String() string {
	return fmt.Sprintf("%d syntheses, %d failures, %s audio, avg %v",
		s.Syntheses, s.Failures, humanize.Bytes(s.TotalBytes), s.AverageDuration().Round(time.Millisecond))
}

// metrics tracks synthesis timings and logs each run.
type metrics struct {
	mu     sync.Mutex
	stats  Stats
	logger *log.Logger
}

// synthesis is one in-progress measurement.
type synthesis struct {
	m          *metrics
	backend    string
	textLength int
	start      time.Time
}

func (m *metrics) start(backend string, textLength int) *synthesis {
	m.logger.Debug("Synthesis started", "backend", backend, "textLength", textLength)
	return &synthesis{m: m, backend: backend, textLength: textLength, start: time.Now()}
}

// end records the outcome of the synthesis.
func (s *synthesis) end(audioBytes int64, err error) {
	duration := time.Since(s.start)

	s.m.mu.Lock()
	s.m.stats.Syntheses++
	s.m.stats.TotalDuration += duration
	if err != nil {
		s.m.stats.Failures++
	} else if audioBytes > 0 {
		s.m.stats.TotalBytes += uint64(audioBytes)
	}
	s.m.mu.Unlock()

	if err != nil {
		s.m.logger.Error("Synthesis failed",
			"backend", s.backend,
			"duration", duration,
			"error", err)
		return
	}
	s.m.logger.Info("Synthesis completed",
		"backend", s.backend,
		"textLength", s.textLength,
		"audio", humanize.Bytes(uint64(audioBytes)),
		"duration", duration)
}

func (m *metrics) snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

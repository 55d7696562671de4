package main

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/vkngwrapper/deferred/frame"
)

const statsInterval = 5 * time.Second

// frameStats counts frame outcomes and reports them once per interval.
type frameStats struct {
	logger   *log.Logger
	interval time.Duration

	windowStart time.Duration
	presented   int
	skipped     int
	dropped     int
}

func newFrameStats(logger *log.Logger, now time.Duration) *frameStats {
	return &frameStats{logger: logger, interval: statsInterval, windowStart: now}
}

// record counts outcome at now and reports when the interval has passed.
// It returns true when it reported.
func (s *frameStats) record(outcome frame.Outcome, now time.Duration) bool {
	switch outcome {
	case frame.Presented:
		s.presented++
	case frame.Skipped:
		s.skipped++
	case frame.Dropped:
		s.dropped++
	}

	elapsed := now - s.windowStart
	if elapsed < s.interval {
		return false
	}

	var mean time.Duration
	if s.presented > 0 {
		mean = elapsed / time.Duration(s.presented)
	}
	s.logger.Debug("frame stats", "presented", s.presented, "mean", mean,
		"skipped", s.skipped, "dropped", s.dropped)

	s.windowStart = now
	s.presented, s.skipped, s.dropped = 0, 0, 0
	return true
}

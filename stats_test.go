package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vkngwrapper/deferred/frame"
)

func TestFrameStatsReportsPerInterval(t *testing.T) {
	var out bytes.Buffer
	logger := log.New(&out)
	logger.SetLevel(log.DebugLevel)

	stats := newFrameStats(logger, 0)

	step := 10 * time.Millisecond
	now := time.Duration(0)
	reports := 0
	for i := 0; i < 1000; i++ {
		now += step
		outcome := frame.Presented
		if i%100 == 0 {
			outcome = frame.Dropped
		}
		if stats.record(outcome, now) {
			reports++
		}
	}

	// 10s of frames at a 5s interval.
	if reports != 2 {
		t.Errorf("%d reports, want 2", reports)
	}
	if !strings.Contains(out.String(), "frame stats") {
		t.Errorf("log output %q has no stats", out.String())
	}
	if !strings.Contains(out.String(), "dropped=5") {
		t.Errorf("log output %q does not count dropped frames", out.String())
	}
}

func TestFrameStatsWithoutPresents(t *testing.T) {
	var out bytes.Buffer
	logger := log.New(&out)
	logger.SetLevel(log.DebugLevel)

	stats := newFrameStats(logger, 0)
	if !stats.record(frame.Skipped, statsInterval) {
		t.Fatal("no report after a full interval")
	}
	if stats.presented != 0 || stats.skipped != 0 {
		t.Errorf("counters not reset: %+v", stats)
	}
}

// Command motionctl-play streams a job file at a machine described by a
// config file. Like motionctl-jog, it holds no protocol or planning logic:
// it loads config.File and jobfile.Job, builds a planner.Planner, and
// drives a motionctl.Connection with the result.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dkellgren/motionctl/config"
	"github.com/dkellgren/motionctl/internal/logging"
	"github.com/dkellgren/motionctl/internal/wire"
	"github.com/dkellgren/motionctl/jobfile"
	"github.com/dkellgren/motionctl/planner"
)

func main() {
	var (
		configPath = flag.String("config", "", "machine config YAML")
		jobPath    = flag.String("job", "", "job YAML to play")
		verbose    = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	if *configPath == "" || *jobPath == "" {
		log.Fatal("motionctl-play: -config and -job are both required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "path", *configPath, "err", err)
		os.Exit(1)
	}

	job, err := jobfile.Load(*jobPath)
	if err != nil {
		logger.Error("failed to load job", "path", *jobPath, "err", err)
		os.Exit(1)
	}

	p := planner.New(cfg.Limits(), cfg.Microsteps, make([]float64, len(cfg.Microsteps)))
	segments, err := plan(p, job)
	if err != nil {
		logger.Error("planning failed", "err", err)
		os.Exit(1)
	}
	logger.Info("planned job", "entries", len(job), "segments", len(segments))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("connecting", "port", cfg.Port, "baud", cfg.Baud)
	conn, err := cfg.Connect(ctx)
	if err != nil {
		logger.Error("failed to open connection", "port", cfg.Port, "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Error("error closing connection", "err", err)
		}
	}()

	events := make([]wire.Message, len(segments))
	for i, s := range segments {
		events[i] = s
	}
	if err := conn.SendBuffered(events, true, true); err != nil {
		logger.Error("send failed", "err", err)
		os.Exit(1)
	}

	statusDone := make(chan struct{})
	go reportStatus(conn, statusDone)
	defer close(statusDone)

	idleCtx, idleCancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer idleCancel()
	if err := conn.WaitUntilIdle(idleCtx); err != nil {
		logger.Error("wait until idle failed", "err", err)
		os.Exit(1)
	}

	snap := conn.Metrics()
	fmt.Printf("job complete: segments_sent=%d buffer_underflows=%d\n", snap.SegmentsSent, snap.BufferUnderflowEvents)
}

// plan converts a job's entries into wire segments in order, threading the
// planner's running position from one entry to the next.
func plan(p *planner.Planner, job jobfile.Job) ([]wire.Segment, error) {
	var out []wire.Segment
	for _, entry := range job {
		var (
			segs []wire.Segment
			err  error
		)
		if entry.IsSegment() {
			segs, err = p.PlanSegments([]wire.Segment{{
				MoveID:        entry.Segment.MoveID,
				StartVelocity: entry.Segment.StartV,
				EndVelocity:   entry.Segment.EndV,
				Coords:        entry.Segment.Coords,
			}}, nil, false)
		} else {
			segs, err = p.PlanMoves([][]float64{entry.To}, 0)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, segs...)
	}
	return out, nil
}

// reportStatus prints a status line every second until stop is closed.
func reportStatus(conn interface {
	Status() (*wire.Status, bool)
}, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if status, ok := conn.Status(); ok {
				fmt.Printf("status: flag=%v position=%v free_space=%d\n", status.Flag, status.Position, status.FreeSpace)
			}
		}
	}
}

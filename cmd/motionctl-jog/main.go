// Command motionctl-jog drives a single absolute move on a machine and
// exits. It carries no protocol or planning logic of its own: it loads a
// config.File, builds a planner.Planner from it, and wires the planned
// segments through a motionctl.Connection.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dkellgren/motionctl"
	"github.com/dkellgren/motionctl/config"
	"github.com/dkellgren/motionctl/internal/logging"
	"github.com/dkellgren/motionctl/internal/wire"
	"github.com/dkellgren/motionctl/planner"
)

// axisTarget is one "-axis index=value" pair.
type axisTarget struct {
	index int
	value float64
}

// axisFlags accumulates repeated -axis flags in the order they're given.
type axisFlags []axisTarget

func (a *axisFlags) String() string {
	parts := make([]string, len(*a))
	for i, t := range *a {
		parts[i] = fmt.Sprintf("%d=%g", t.index, t.value)
	}
	return strings.Join(parts, ",")
}

func (a *axisFlags) Set(s string) error {
	idxStr, valStr, ok := strings.Cut(s, "=")
	if !ok {
		return fmt.Errorf("expected axis=value, got %q", s)
	}
	idx, err := strconv.Atoi(strings.TrimSpace(idxStr))
	if err != nil {
		return fmt.Errorf("invalid axis index %q: %w", idxStr, err)
	}
	val, err := strconv.ParseFloat(strings.TrimSpace(valStr), 64)
	if err != nil {
		return fmt.Errorf("invalid axis value %q: %w", valStr, err)
	}
	*a = append(*a, axisTarget{index: idx, value: val})
	return nil
}

func main() {
	var (
		port       = flag.String("port", "", "serial port device path (overrides -config's port)")
		baud       = flag.Int("baud", 0, "baud rate (overrides -config's baud)")
		configPath = flag.String("config", "", "machine config YAML (required for kinematic limits and microsteps)")
		verbose    = flag.Bool("v", false, "verbose logging")
	)
	var axes axisFlags
	flag.Var(&axes, "axis", "axis=value target, repeatable (e.g. -axis 0=10 -axis 1=5)")
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	if *configPath == "" {
		log.Fatal("motionctl-jog: -config is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "path", *configPath, "err", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *baud > 0 {
		cfg.Baud = *baud
	}

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

	target := make([]float64, len(cfg.Microsteps))
	sort.Slice(axes, func(i, j int) bool { return axes[i].index < axes[j].index })
	for _, a := range axes {
		if a.index < 0 || a.index >= len(target) {
			log.Fatalf("motionctl-jog: axis index %d out of range [0,%d)", a.index, len(target))
		}
		target[a.index] = a.value
	}

	p := planner.New(cfg.Limits(), cfg.Microsteps, make([]float64, len(cfg.Microsteps)))
	segments, err := p.Goto(target...)
	if err != nil {
		logger.Error("planning failed", "err", err)
		os.Exit(1)
	}

	events := make([]wire.Message, len(segments))
	for i, s := range segments {
		events[i] = s
	}
	logger.Info("sending move", "segments", len(events), "target", target)
	if err := conn.SendBuffered(events, true, true); err != nil {
		logger.Error("send failed", "err", err)
		os.Exit(1)
	}

	idleCtx, idleCancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer idleCancel()
	if err := conn.WaitUntilIdle(idleCtx); err != nil {
		logger.Error("wait until idle failed", "err", err)
		os.Exit(1)
	}

	if status, ok := conn.Status(); ok {
		fmt.Printf("final status: flag=%v position=%v\n", status.Flag, status.Position)
	} else {
		fmt.Println("move complete, no status received")
	}
}

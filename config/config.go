// Package config loads the YAML document describing a machine: its serial
// port, timeouts, kinematic limits, and microstep scale.
package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dkellgren/motionctl"
	"github.com/dkellgren/motionctl/planner"
)

// Limits is the YAML shape of a machine's kinematic envelope; Limits()
// converts it into a planner.KinematicLimits.
type Limits struct {
	VMax              []float64 `yaml:"v_max"`
	AMax              []float64 `yaml:"a_max"`
	JunctionSpeed     float64   `yaml:"junction_speed"`
	JunctionDeviation float64   `yaml:"junction_deviation"`
}

// File is the decoded root document: everything needed to open a
// connection and plan moves against one machine.
type File struct {
	Port               string    `yaml:"port"`
	Baud               int       `yaml:"baud"`
	ReadTimeoutMS      int       `yaml:"read_timeout_ms"`
	HandshakeTimeoutMS int       `yaml:"handshake_timeout_ms"`
	CPUAffinity        int       `yaml:"cpu_affinity"`
	Microsteps         []float64 `yaml:"microsteps"`
	LimitsConfig       Limits    `yaml:"limits"`
}

// Load reads and decodes path, then validates it: the v_max, a_max, and
// microsteps arrays must agree in length, rates must be non-negative, and
// a port must be named.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, motionctl.NewError("config.Load", motionctl.CodeConfigInvalid, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, motionctl.NewError("config.Load", motionctl.CodeConfigInvalid, err)
	}
	if err := f.validate(); err != nil {
		return nil, motionctl.NewError("config.Load", motionctl.CodeConfigInvalid, err)
	}
	return &f, nil
}

func (f *File) validate() error {
	if f.Port == "" {
		return fmt.Errorf("config: port is required")
	}
	axes := len(f.Microsteps)
	if len(f.LimitsConfig.VMax) != axes || len(f.LimitsConfig.AMax) != axes {
		return fmt.Errorf("config: v_max (%d), a_max (%d), and microsteps (%d) must have the same length",
			len(f.LimitsConfig.VMax), len(f.LimitsConfig.AMax), axes)
	}
	for _, v := range f.LimitsConfig.VMax {
		if v < 0 {
			return fmt.Errorf("config: v_max entries must be non-negative, got %v", v)
		}
	}
	for _, a := range f.LimitsConfig.AMax {
		if a < 0 {
			return fmt.Errorf("config: a_max entries must be non-negative, got %v", a)
		}
	}
	return nil
}

// Limits converts the file's flat YAML arrays into a planner.KinematicLimits.
func (f *File) Limits() planner.KinematicLimits {
	return planner.KinematicLimits{
		VMax:              f.LimitsConfig.VMax,
		AMax:              f.LimitsConfig.AMax,
		JunctionSpeed:     f.LimitsConfig.JunctionSpeed,
		JunctionDeviation: f.LimitsConfig.JunctionDeviation,
	}
}

// Connect opens the serial port named in the file, wiring its declared
// baud rate, handshake timeout, and CPU affinity through to
// motionctl.Open. ReadTimeoutMS sets the worker's status poll interval;
// the port's read timeout after the handshake stays at
// motionctl.DefaultPollTimeout. ctx
// being already done aborts before the handshake starts; Open itself has
// no context parameter, so cancellation mid-handshake is bounded instead
// by HandshakeTimeoutMS.
func (f *File) Connect(ctx context.Context) (*motionctl.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, motionctl.NewError("config.Connect", motionctl.CodeConfigInvalid, err)
	}

	opts := []motionctl.Option{
		motionctl.WithBaud(f.baudOrDefault()),
		motionctl.WithHandshakeTimeout(f.handshakeTimeoutOrDefault()),
		motionctl.WithPollInterval(f.pollIntervalOrDefault()),
	}
	if f.CPUAffinity > 0 {
		opts = append(opts, motionctl.WithCPUAffinity(f.CPUAffinity))
	}

	return motionctl.Open(f.Port, opts...)
}

func (f *File) baudOrDefault() int {
	if f.Baud > 0 {
		return f.Baud
	}
	return motionctl.DefaultBaudRate
}

func (f *File) handshakeTimeoutOrDefault() time.Duration {
	if f.HandshakeTimeoutMS > 0 {
		return time.Duration(f.HandshakeTimeoutMS) * time.Millisecond
	}
	return motionctl.DefaultHandshakeTimeout
}

func (f *File) pollIntervalOrDefault() time.Duration {
	if f.ReadTimeoutMS > 0 {
		return time.Duration(f.ReadTimeoutMS) * time.Millisecond
	}
	return motionctl.DefaultPollInterval
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/itohio/daqsim/pkg/config"
	"github.com/itohio/daqsim/pkg/daq"
	"github.com/itohio/daqsim/pkg/device"
	"github.com/itohio/daqsim/pkg/motor"
	"github.com/itohio/daqsim/pkg/scan"
)

var mockMotors bool // Replace serial motors with simulated ones

// runCmd runs the configured step scan against the simulated DAQ
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the configured step scan",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		return runScan(ctx, cfg, mockMotors, cmd.OutOrStdout())
	},
}

func runScan(ctx context.Context, cfg *config.Config, mock bool, out io.Writer) error {
	motorCfgs := cfg.Motors
	if mock {
		motorCfgs = make([]config.MotorConfig, len(cfg.Motors))
		copy(motorCfgs, cfg.Motors)
		for i := range motorCfgs {
			motorCfgs[i].Kind = config.MotorSim
		}
	}
	if cfg.Scan.Motor == "" {
		return errors.New("scan motor is not configured")
	}

	d, err := daq.NewFromConfig(&cfg.Daq, logrus.WithField("device", cfg.Daq.Name))
	if err != nil {
		return err
	}
	defer d.Close()

	motors, err := motor.NewAll(motorCfgs, logrus.WithField("system", "motor"))
	if err != nil {
		return err
	}
	defer motor.CloseAll(motors)

	m, ok := motors[cfg.Scan.Motor]
	if !ok {
		return errors.Errorf("scan motor %q is not configured", cfg.Scan.Motor)
	}

	fields := device.Fields{daq.FieldMotors: []any{m}}
	if cfg.Scan.EventsPerPoint > 0 {
		fields[daq.FieldEvents] = cfg.Scan.EventsPerPoint
	}

	res, err := scan.Run(ctx, scan.Plan{
		Detectors: []device.Detector{d},
		Motor:     m,
		MotorName: cfg.Scan.Motor,
		Start:     cfg.Scan.Start,
		Stop:      cfg.Scan.Stop,
		Num:       cfg.Scan.Num,
		Subscans:  cfg.Scan.Subscans,
		AndBack:   cfg.Scan.AndBack,
		Configure: fields,
	}, logrus.WithField("plan", "scan"))
	if res != nil {
		printSummary(out, cfg, res)
	}
	return err
}

func printSummary(out io.Writer, cfg *config.Config, res *scan.Result) {
	fmt.Fprintf(out, "%-8s %-6s %12s %12s %12s\n", "subscan", "point", "setpoint", "position", "elapsed")
	for _, p := range res.Points {
		fmt.Fprintf(out, "%-8d %-6d %12.4f %12.4f %12s\n", p.Subscan, p.Index, p.Setpoint, p.Position, p.Elapsed.Round(time.Millisecond))
	}
	fmt.Fprintf(out, "%d points on %s in %s\n", len(res.Points), cfg.Scan.Motor, res.Duration.Round(time.Millisecond))
}

func init() {
	runCmd.Flags().BoolVar(&mockMotors, "mock-motors", false, "Use simulated motors in place of serial ones")
}

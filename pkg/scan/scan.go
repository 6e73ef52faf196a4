// Package scan drives protocol devices through a step scan: stage, move,
// trigger and read at each point, unstage.
package scan

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/itohio/daqsim/pkg/device"
)

// Plan describes a step scan of one motor.
type Plan struct {
	Detectors []device.Detector
	Motor     device.Movable
	MotorName string
	Start     float64
	Stop      float64
	Num       int
	Subscans  int  // Repetitions of the start..stop sweep (0 = 1)
	AndBack   bool // Reverse direction after every subscan

	// Configure is applied to every detector after staging.
	Configure device.Fields
}

// Point is the outcome of one scan point.
type Point struct {
	Subscan  int
	Index    int
	Setpoint float64
	Position float64
	Reading  device.Reading
	Elapsed  time.Duration
}

// Result collects the points of a scan.
type Result struct {
	Points   []Point
	Duration time.Duration
}

// Linspace returns num evenly spaced values from start to stop inclusive.
func Linspace(start, stop float64, num int) []float64 {
	if num <= 0 {
		return nil
	}
	if num == 1 {
		return []float64{start}
	}
	step := (stop - start) / float64(num-1)
	values := make([]float64, num)
	for i := range values {
		values[i] = start + float64(i)*step
	}
	values[num-1] = stop
	return values
}

func (p *Plan) validate() error {
	if p.Motor == nil {
		return errors.New("scan: motor is required")
	}
	if len(p.Detectors) == 0 {
		return errors.New("scan: at least one detector is required")
	}
	if p.Num < 1 {
		return errors.Errorf("scan: num must be at least 1, got %d", p.Num)
	}
	if p.Subscans < 0 {
		return errors.Errorf("scan: subscans must not be negative, got %d", p.Subscans)
	}
	return nil
}

// Run executes the plan. Devices are unstaged even when the scan fails; the
// points completed before a failure are returned with the error.
func Run(ctx context.Context, p Plan, log *logrus.Entry) (*Result, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.WithField("plan", "scan")
	}

	begin := time.Now()
	res := &Result{}

	staged := stage(p, log)
	defer unstage(staged, log)

	if p.Configure != nil {
		for _, det := range p.Detectors {
			if _, _, err := det.Configure(p.Configure); err != nil {
				return res, errors.Wrapf(err, "configure %s", det.Name())
			}
		}
	}

	subscans := p.Subscans
	if subscans == 0 {
		subscans = 1
	}

	start, stop := p.Start, p.Stop
	for sub := 0; sub < subscans; sub++ {
		log.WithFields(logrus.Fields{"subscan": sub, "start": start, "stop": stop}).Info("subscan")

		for i, setpoint := range Linspace(start, stop, p.Num) {
			if err := ctx.Err(); err != nil {
				return res, err
			}

			pt, err := step(ctx, p, setpoint)
			pt.Subscan, pt.Index = sub, i
			if err != nil {
				return res, errors.Wrapf(err, "subscan %d point %d", sub, i)
			}
			res.Points = append(res.Points, pt)
			log.WithFields(logrus.Fields{"point": i, "position": pt.Position, "elapsed": pt.Elapsed}).Debug("point done")
		}

		if p.AndBack {
			start, stop = stop, start
		}
	}

	res.Duration = time.Since(begin)
	return res, nil
}

// step moves to setpoint, triggers every detector and reads them once all
// triggers have resolved.
func step(ctx context.Context, p Plan, setpoint float64) (Point, error) {
	begin := time.Now()
	pt := Point{Setpoint: setpoint}

	if err := p.Motor.Move(ctx, setpoint); err != nil {
		return pt, errors.Wrap(err, "move")
	}

	statuses := make([]device.Status, len(p.Detectors))
	for i, det := range p.Detectors {
		statuses[i] = det.Trigger()
	}
	for i, st := range statuses {
		if err := st.Wait(ctx); err != nil {
			return pt, errors.Wrapf(err, "trigger %s", p.Detectors[i].Name())
		}
	}

	pos, err := p.Motor.Position()
	if err != nil {
		return pt, errors.Wrap(err, "read motor")
	}
	pt.Position = pos

	pt.Reading = device.Reading{}
	if p.MotorName != "" {
		pt.Reading[p.MotorName] = pos
	}
	for _, det := range p.Detectors {
		for k, v := range det.Read() {
			pt.Reading[k] = v
		}
	}

	pt.Elapsed = time.Since(begin)
	return pt, nil
}

// stage stages the detectors and, if it supports it, the motor.
func stage(p Plan, log *logrus.Entry) []device.Stageable {
	var staged []device.Stageable
	for _, det := range p.Detectors {
		det.Stage()
		staged = append(staged, det)
	}
	if s, ok := p.Motor.(device.Stageable); ok {
		s.Stage()
		staged = append(staged, s)
	}
	log.WithField("devices", len(staged)).Debug("staged")
	return staged
}

// unstage unstages in reverse staging order.
func unstage(staged []device.Stageable, log *logrus.Entry) {
	for i := len(staged) - 1; i >= 0; i-- {
		staged[i].Unstage()
	}
	log.WithField("devices", len(staged)).Debug("unstaged")
}

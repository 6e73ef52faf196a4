package daq

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/daqsim/pkg/device"
)

// fakeMotor is a position-bearing device for tests.
type fakeMotor struct {
	pos float64
	err error
}

func (m *fakeMotor) Position() (float64, error) {
	return m.pos, m.err
}

type panickingMotor struct{}

func (panickingMotor) Position() (float64, error) {
	panic("encoder unplugged")
}

func newTestDaq(t *testing.T, initial State, rate float64) *Daq {
	t.Helper()
	logger, _ := test.NewNullLogger()
	d := New(&Config{
		Rate:         rate,
		InitialState: initial,
		Logger:       logrus.NewEntry(logger),
	})
	t.Cleanup(func() { d.Close() })
	return d
}

func waitStatus(t *testing.T, s device.Status, timeout time.Duration) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(timeout):
		t.Fatalf("status did not resolve within %v", timeout)
	}
}

func TestNew_Defaults(t *testing.T) {
	d := New(nil)
	defer d.Close()

	assert.Equal(t, "daq", d.Name())
	assert.Nil(t, d.Parent())
	assert.Equal(t, 120.0, d.Rate())
	assert.Equal(t, Allocated, d.State())
	assert.Equal(t, DefaultSettings().clone(), d.Settings())

	_, ok := d.LastPosition()
	assert.False(t, ok)
}

func TestReadDescribe_Empty(t *testing.T) {
	d := newTestDaq(t, Connected, 120)

	for _, r := range []device.Reading{d.Read(), d.Describe(), d.ReadConfiguration(), d.DescribeConfiguration()} {
		assert.NotNil(t, r)
		assert.Empty(t, r)
	}
}

func TestTrigger_InvalidStartingStates(t *testing.T) {
	for _, s := range []State{Reset, Unallocated, Allocated, Running} {
		t.Run(s.String(), func(t *testing.T) {
			d := newTestDaq(t, s, 120)

			status := d.Trigger()

			waitStatus(t, status, time.Second)
			assert.ErrorIs(t, status.Err(), ErrInvalidState)
			assert.Contains(t, status.Err().Error(), s.String())
			assert.Equal(t, s, d.State())
		})
	}
}

func TestTrigger_MovesToRunningSynchronously(t *testing.T) {
	for _, s := range []State{Connected, Configured, Starting, Paused} {
		t.Run(s.String(), func(t *testing.T) {
			d := newTestDaq(t, s, 1)

			status := d.Trigger()

			assert.Equal(t, Running, d.State())
			assert.False(t, status.Resolved(), "trigger must not block on the collection")
		})
	}
}

func TestTrigger_SucceedsAfterWindow(t *testing.T) {
	d := newTestDaq(t, Connected, 4)
	_, _, err := d.Configure(device.Fields{FieldEvents: 2})
	require.NoError(t, err)

	start := time.Now()
	status := d.Trigger()

	waitStatus(t, status, 3*time.Second)
	elapsed := time.Since(start)

	assert.True(t, status.Success())
	assert.NoError(t, status.Err())
	assert.GreaterOrEqual(t, elapsed, 450*time.Millisecond)
	assert.Less(t, elapsed, 1500*time.Millisecond)
	assert.Equal(t, Starting, d.State())
}

func TestTrigger_SecondTriggerInterruptsFirst(t *testing.T) {
	d := newTestDaq(t, Connected, 1)
	_, _, err := d.Configure(device.Fields{FieldEvents: 30})
	require.NoError(t, err)

	first := d.Trigger()
	require.Equal(t, Running, d.State())

	second := d.Trigger()

	waitStatus(t, first, time.Second)
	waitStatus(t, second, time.Second)
	assert.ErrorIs(t, first.Err(), ErrInterrupted)
	assert.ErrorIs(t, second.Err(), ErrInvalidState)

	// The interrupted worker must not apply its STARTING transition.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, Running, d.State())
}

func TestTrigger_NewRunReplacesInterruptedOne(t *testing.T) {
	d := newTestDaq(t, Connected, 100)
	_, _, err := d.Configure(device.Fields{FieldEvents: 3000})
	require.NoError(t, err)

	first := d.Trigger()
	d.TransitionTo(Paused)

	_, _, err = d.Configure(device.Fields{FieldEvents: 10})
	require.NoError(t, err)
	second := d.Trigger()

	waitStatus(t, first, time.Second)
	assert.ErrorIs(t, first.Err(), ErrInterrupted)

	waitStatus(t, second, 2*time.Second)
	assert.True(t, second.Success())
	assert.Equal(t, Starting, d.State())
}

func TestTrigger_MotorWithoutPosition(t *testing.T) {
	d := newTestDaq(t, Connected, 1000)
	m1 := &fakeMotor{pos: 3.25}
	_, _, err := d.Configure(device.Fields{FieldMotors: []any{m1, "m2"}})
	require.NoError(t, err)

	status := d.Trigger()

	waitStatus(t, status, time.Second)
	assert.ErrorIs(t, status.Err(), ErrMotorConfig)
	assert.Equal(t, Running, d.State(), "motor errors do not revert the state")

	pos, ok := d.LastPosition()
	assert.True(t, ok)
	assert.Equal(t, 3.25, pos)
}

func TestTrigger_MotorReadErrors(t *testing.T) {
	tests := []struct {
		name  string
		motor any
	}{
		{"error", &fakeMotor{err: errors.New("timeout")}},
		{"panic", panickingMotor{}},
		{"nil", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDaq(t, Configured, 1000)
			_, _, err := d.Configure(device.Fields{FieldMotors: []any{tt.motor}})
			require.NoError(t, err)

			status := d.Trigger()

			waitStatus(t, status, time.Second)
			assert.ErrorIs(t, status.Err(), ErrMotorConfig)
			assert.Equal(t, Running, d.State())
		})
	}
}

func TestTrigger_RecordsLastPosition(t *testing.T) {
	d := newTestDaq(t, Connected, 1000)
	_, _, err := d.Configure(device.Fields{FieldMotors: []*fakeMotor{{pos: 1}, {pos: 2}}})
	require.NoError(t, err)

	status := d.Trigger()
	waitStatus(t, status, time.Second)

	require.True(t, status.Success())
	pos, ok := d.LastPosition()
	assert.True(t, ok)
	assert.Equal(t, 2.0, pos)
}

func TestTrigger_RepeatedRuns(t *testing.T) {
	d := newTestDaq(t, Connected, 1000)

	for i := 0; i < 3; i++ {
		status := d.Trigger()
		waitStatus(t, status, time.Second)
		require.True(t, status.Success(), "run %d", i)
		require.Equal(t, Starting, d.State())
	}
}

func TestTrigger_ObservationsAcrossRun(t *testing.T) {
	d := newTestDaq(t, Connected, 1000)

	var mu sync.Mutex
	var seen []Observation
	d.OnTransition(func(o Observation) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, o)
	})

	status := d.Trigger()
	waitStatus(t, status, time.Second)
	d.Unstage()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, countEvents(seen, EventRunStarting))
	assert.Equal(t, 1, countEvents(seen, EventRunEnding))
	assert.Equal(t, []State{
		Configured, Starting, Paused, Running, // trigger
		Paused, Starting, // collection finished
		Configured, Connected, // unstage
	}, transitions(seen))
}

func TestStageUnstage_ForceConnected(t *testing.T) {
	for _, s := range States() {
		t.Run(s.String(), func(t *testing.T) {
			d := newTestDaq(t, s, 120)

			var steps []State
			d.OnTransition(func(o Observation) {
				if o.Event == EventTransition {
					steps = append(steps, o.To)
				}
			})

			staged := d.Stage()
			assert.Equal(t, []any{d}, staged)
			assert.Equal(t, Connected, d.State())
			assert.Equal(t, Path(s, Connected), steps)

			assert.Equal(t, []any{d}, d.Unstage())
			assert.Equal(t, Connected, d.State())
		})
	}
}

func TestStage_InterruptsCollection(t *testing.T) {
	d := newTestDaq(t, Connected, 1)
	_, _, err := d.Configure(device.Fields{FieldEvents: 60})
	require.NoError(t, err)

	status := d.Trigger()
	d.Stage()

	waitStatus(t, status, time.Second)
	assert.ErrorIs(t, status.Err(), ErrInterrupted)
	assert.Equal(t, Connected, d.State())
}

func TestDaq_ObserverMayReadState(t *testing.T) {
	d := newTestDaq(t, Connected, 120)

	var states []State
	d.OnTransition(func(o Observation) {
		states = append(states, d.State())
	})

	d.TransitionTo(Configured)
	assert.Equal(t, []State{Configured}, states)
}

func TestTransitionTo_UndefinedStateKeepsState(t *testing.T) {
	d := newTestDaq(t, Connected, 120)

	var observed []Observation
	d.OnTransition(func(o Observation) { observed = append(observed, o) })

	d.TransitionTo(State(12))
	assert.Equal(t, Connected, d.State())

	d.TransitionTo(State(-1))
	assert.Equal(t, Connected, d.State())
	assert.True(t, d.State().Valid())
	assert.Empty(t, observed)
}

func TestWaitFor_ClampsLongWindows(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, waitFor(2, 4))
	assert.Equal(t, time.Duration(math.MaxInt64), waitFor(math.MaxInt, 1))
	assert.Equal(t, time.Duration(math.MaxInt64), waitFor(math.MaxInt, 1e-3))
}

func TestTrigger_HugeEventCountStillWaits(t *testing.T) {
	d := newTestDaq(t, Connected, 1)
	_, _, err := d.Configure(device.Fields{FieldEvents: math.MaxInt})
	require.NoError(t, err)

	status := d.Trigger()
	time.Sleep(100 * time.Millisecond)
	assert.False(t, status.Resolved(), "the window must not be negative")
	assert.Equal(t, Running, d.State())

	d.Stage()
	waitStatus(t, status, time.Second)
	assert.ErrorIs(t, status.Err(), ErrInterrupted)
	assert.Equal(t, Connected, d.State())
}

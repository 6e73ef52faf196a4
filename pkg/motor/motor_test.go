package motor

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/daqsim/pkg/config"
)

func TestNew_Sim(t *testing.T) {
	m, err := New(&config.MotorConfig{Name: "x", Kind: config.MotorSim}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Sim{}, m)
	assert.Equal(t, "x", m.Name())
}

func TestNew_UnknownKind(t *testing.T) {
	_, err := New(&config.MotorConfig{Name: "x", Kind: "piezo"}, nil)
	assert.ErrorContains(t, err, "piezo")
}

func TestNew_SerialOpenFails(t *testing.T) {
	_, err := New(&config.MotorConfig{
		Name: "x",
		Kind: config.MotorSerial,
		Port: "/dev/does-not-exist-daqsim",
	}, nil)
	assert.Error(t, err)
}

func TestNewAll(t *testing.T) {
	motors, err := NewAll([]config.MotorConfig{
		{Name: "x", Kind: config.MotorSim},
		{Name: "y", Kind: config.MotorSim, Initial: 1},
	}, logrus.NewEntry(logrus.New()))
	require.NoError(t, err)
	defer CloseAll(motors)

	require.Len(t, motors, 2)
	pos, err := motors["y"].Position()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, pos, 1e-3)
}

func TestNewAll_StopsOnError(t *testing.T) {
	_, err := NewAll([]config.MotorConfig{
		{Name: "x", Kind: config.MotorSim},
		{Name: "bad", Kind: "piezo"},
	}, logrus.NewEntry(logrus.New()))
	assert.Error(t, err)
}

package daq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/daqsim/pkg/config"
)

func TestNewFromConfig(t *testing.T) {
	cfg := config.Default().Daq
	cfg.Name = "daq2"
	cfg.Rate = 60
	cfg.InitialState = "configured"
	cfg.Events = 5
	cfg.AlgVersion = []int{3, 1}

	d, err := NewFromConfig(&cfg, nil)
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, "daq2", d.Name())
	assert.Equal(t, float64(60), d.Rate())
	assert.Equal(t, Configured, d.State())

	s := d.Settings()
	assert.Equal(t, 5, s.Events)
	assert.Equal(t, "scan", s.DetName)
	assert.Equal(t, []any{3, 1}, s.AlgVersion)
	assert.Nil(t, s.SeqCtl)
}

func TestNewFromConfig_BadState(t *testing.T) {
	cfg := config.Default().Daq
	cfg.InitialState = "warming_up"

	_, err := NewFromConfig(&cfg, nil)
	assert.ErrorContains(t, err, "initial_state")
}

package daq

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/itohio/daqsim/pkg/config"
)

// NewFromConfig creates a DAQ from its YAML configuration section.
func NewFromConfig(cfg *config.DaqConfig, log *logrus.Entry) (*Daq, error) {
	initial, err := ParseState(cfg.InitialState)
	if err != nil {
		return nil, errors.Wrap(err, "initial_state")
	}

	settings := DefaultSettings()
	settings.Events = cfg.Events
	settings.GroupMask = cfg.GroupMask
	settings.Record = cfg.Record
	settings.DetName = cfg.DetName
	settings.ScanType = cfg.ScanType
	settings.SerialNumber = cfg.SerialNumber
	settings.AlgName = cfg.AlgName
	if cfg.AlgVersion != nil {
		settings.AlgVersion = make([]any, len(cfg.AlgVersion))
		for i, v := range cfg.AlgVersion {
			settings.AlgVersion[i] = v
		}
	}

	if log == nil {
		log = logrus.WithField("device", cfg.Name)
	}

	return New(&Config{
		Name:         cfg.Name,
		Rate:         cfg.Rate,
		InitialState: initial,
		Settings:     &settings,
		Logger:       log,
	}), nil
}

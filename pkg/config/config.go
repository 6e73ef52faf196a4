package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Motor kinds understood by the motor factory.
const (
	MotorSim    = "sim"
	MotorSerial = "serial"
)

// Config represents the simulator configuration.
type Config struct {
	Daq    DaqConfig     `yaml:"daq"`
	Motors []MotorConfig `yaml:"motors"`
	Scan   ScanConfig    `yaml:"scan"`
	Log    LogConfig     `yaml:"log"`
}

// DaqConfig contains the simulated DAQ identity, timing and the power-on
// values of its configurable fields.
type DaqConfig struct {
	Name         string  `yaml:"name"`
	Rate         float64 `yaml:"rate"`          // Simulated trigger rate (Hz)
	InitialState string  `yaml:"initial_state"` // State name, e.g. ALLOCATED
	Events       int     `yaml:"events"`
	GroupMask    int     `yaml:"group_mask"`
	Record       bool    `yaml:"record"`
	DetName      string  `yaml:"detname"`
	ScanType     string  `yaml:"scantype"`
	SerialNumber string  `yaml:"serial_number"`
	AlgName      string  `yaml:"alg_name"`
	AlgVersion   []int   `yaml:"alg_version"`
}

// MotorConfig describes one positioner.
type MotorConfig struct {
	Name       string        `yaml:"name"`
	Kind       string        `yaml:"kind"`       // sim or serial
	Port       string        `yaml:"port"`       // Serial port (serial only)
	BaudRate   int           `yaml:"baud_rate"`  // Serial only
	Timeout    time.Duration `yaml:"timeout"`    // Reply timeout (serial only)
	Resolution float64       `yaml:"resolution"` // Units per step (sim only)
	Velocity   float64       `yaml:"velocity"`   // Units per second, 0 = instant (sim only)
	Initial    float64       `yaml:"initial"`    // Power-on position (sim only)
}

// ScanConfig describes a step scan over one motor.
type ScanConfig struct {
	Motor          string  `yaml:"motor"`
	Start          float64 `yaml:"start"`
	Stop           float64 `yaml:"stop"`
	Num            int     `yaml:"num"`
	Subscans       int     `yaml:"subscans"`
	AndBack        bool    `yaml:"and_back"`
	EventsPerPoint int     `yaml:"events_per_point"`
}

// LogConfig contains logging parameters.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Daq: DaqConfig{
			Name:         "daq",
			Rate:         120,
			InitialState: "ALLOCATED",
			Events:       1,
			GroupMask:    1,
			Record:       false,
			DetName:      "scan",
			ScanType:     "scan",
			SerialNumber: "1234",
			AlgName:      "raw",
			AlgVersion:   []int{1, 0, 0},
		},
		Motors: []MotorConfig{
			{
				Name:       "sim_motor",
				Kind:       MotorSim,
				Resolution: 0.001,
				Velocity:   10,
			},
		},
		Scan: ScanConfig{
			Motor:          "sim_motor",
			Start:          0,
			Stop:           1,
			Num:            5,
			Subscans:       1,
			EventsPerPoint: 12,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Motor returns the motor configuration with the given name.
func (c *Config) Motor(name string) (MotorConfig, bool) {
	for _, m := range c.Motors {
		if m.Name == name {
			return m, true
		}
	}
	return MotorConfig{}, false
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Motors))
	for i, m := range c.Motors {
		if m.Name == "" {
			return fmt.Errorf("motor %d: name is required", i)
		}
		if seen[m.Name] {
			return fmt.Errorf("motor %q: duplicate name", m.Name)
		}
		seen[m.Name] = true

		switch m.Kind {
		case MotorSim:
		case MotorSerial:
			if m.Port == "" {
				return fmt.Errorf("motor %q: serial port is required", m.Name)
			}
		default:
			return fmt.Errorf("motor %q: unknown kind %q", m.Name, m.Kind)
		}
	}

	if c.Scan.Motor != "" && !seen[c.Scan.Motor] {
		return fmt.Errorf("scan motor %q is not configured", c.Scan.Motor)
	}
	if c.Scan.Num < 1 {
		return fmt.Errorf("scan num must be at least 1, got %d", c.Scan.Num)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Daq.Name == "" {
		c.Daq.Name = def.Daq.Name
	}
	if c.Daq.Rate == 0 {
		c.Daq.Rate = def.Daq.Rate
	}
	if c.Daq.InitialState == "" {
		c.Daq.InitialState = def.Daq.InitialState
	}
	if c.Daq.Events == 0 {
		c.Daq.Events = def.Daq.Events
	}
	if c.Daq.GroupMask == 0 {
		c.Daq.GroupMask = def.Daq.GroupMask
	}
	if c.Daq.DetName == "" {
		c.Daq.DetName = def.Daq.DetName
	}
	if c.Daq.ScanType == "" {
		c.Daq.ScanType = def.Daq.ScanType
	}
	if c.Daq.SerialNumber == "" {
		c.Daq.SerialNumber = def.Daq.SerialNumber
	}
	if c.Daq.AlgName == "" {
		c.Daq.AlgName = def.Daq.AlgName
	}
	if len(c.Daq.AlgVersion) == 0 {
		c.Daq.AlgVersion = def.Daq.AlgVersion
	}

	for i := range c.Motors {
		m := &c.Motors[i]
		if m.Kind == "" {
			m.Kind = MotorSim
		}
		switch m.Kind {
		case MotorSim:
			if m.Resolution == 0 {
				m.Resolution = def.Motors[0].Resolution
			}
		case MotorSerial:
			if m.BaudRate == 0 {
				m.BaudRate = 115200
			}
			if m.Timeout == 0 {
				m.Timeout = 2 * time.Second
			}
		}
	}

	if c.Scan.Num == 0 {
		c.Scan.Num = def.Scan.Num
	}
	if c.Scan.Subscans == 0 {
		c.Scan.Subscans = def.Scan.Subscans
	}
	if c.Scan.EventsPerPoint == 0 {
		c.Scan.EventsPerPoint = def.Scan.EventsPerPoint
	}

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}

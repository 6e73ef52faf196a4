package motor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"github.com/itohio/daqsim/pkg/config"
)

const (
	// DefaultBaudRate is the default motor controller baud rate.
	DefaultBaudRate = 115200
	// DefaultTimeout bounds how long a reply may take.
	DefaultTimeout = 2 * time.Second
	// pollInterval is the serial read timeout; reads return at least this
	// often so deadlines and cancellation are noticed.
	pollInterval = 50 * time.Millisecond
)

var (
	// ErrNotConnected is returned when the port has not been opened.
	ErrNotConnected = errors.New("not connected")
	// ErrTimeout is returned when the controller does not answer in time.
	ErrTimeout = errors.New("reply timeout")
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list serial ports")
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{
			Name:        name,
			Description: name,
		})
	}

	return result, nil
}

// Serial is a motor controller reached over a line-oriented serial protocol:
//
//	POS?      -> <position>
//	MOVE <x>  -> DONE          (sent once the move completes)
//	STOP      -> STOPPED
//
// Any request may instead be answered with "ERR <message>".
type Serial struct {
	name     string
	port     string
	baudRate int
	timeout  time.Duration
	log      *logrus.Entry

	mu        sync.Mutex
	conn      io.ReadWriteCloser
	buf       []byte
	connected bool
}

// NewSerial creates a serial motor from its configuration.
func NewSerial(cfg *config.MotorConfig, log *logrus.Entry) *Serial {
	baudRate := cfg.BaudRate
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logrus.WithField("motor", cfg.Name)
	}

	return &Serial{
		name:     cfg.Name,
		port:     cfg.Port,
		baudRate: baudRate,
		timeout:  timeout,
		log:      log,
	}
}

// Name returns the motor name.
func (s *Serial) Name() string {
	return s.name
}

// Connect opens the serial port.
func (s *Serial) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return errors.New("already connected")
	}

	port, err := serial.Open(s.port, &serial.Mode{BaudRate: s.baudRate})
	if err != nil {
		return errors.Wrapf(err, "failed to open serial port %s", s.port)
	}
	if err := port.SetReadTimeout(pollInterval); err != nil {
		port.Close()
		return errors.Wrapf(err, "failed to set read timeout on %s", s.port)
	}

	s.attach(port)
	return nil
}

// attach uses an already open connection. Must be called with mu held.
func (s *Serial) attach(conn io.ReadWriteCloser) {
	s.conn = conn
	s.buf = s.buf[:0]
	s.connected = true
}

// IsConnected returns whether the port is open.
func (s *Serial) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Close closes the serial port.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil
	}

	s.connected = false
	if err := s.conn.Close(); err != nil {
		s.log.Errorf("Error closing serial port: %v", err)
	}
	s.conn = nil

	return nil
}

// Position queries the controller for the current position.
func (s *Serial) Position() (float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	reply, err := s.request(ctx, "POS?")
	if err != nil {
		return 0, err
	}

	pos, err := strconv.ParseFloat(reply, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "motor %s: invalid position %q", s.name, reply)
	}
	return pos, nil
}

// Move commands a move and waits for the controller to report completion.
// If ctx ends first the controller is told to stop.
func (s *Serial) Move(ctx context.Context, position float64) error {
	reply, err := s.request(ctx, "MOVE "+strconv.FormatFloat(position, 'g', -1, 64))
	if err != nil {
		if ctx.Err() != nil {
			s.stop()
		}
		return err
	}
	if reply != "DONE" {
		return errors.Errorf("motor %s: unexpected reply %q to move", s.name, reply)
	}
	return nil
}

// stop aborts a move and discards replies up to the STOPPED acknowledgement.
func (s *Serial) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.send("STOP"); err != nil {
		s.log.Warnf("failed to stop motor: %v", err)
		return
	}
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			s.log.Warnf("no stop acknowledgement: %v", err)
			return
		}
		if line == "STOPPED" {
			return
		}
	}
}

// request sends one command and returns its reply line.
func (s *Serial) request(ctx context.Context, cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.send(cmd); err != nil {
		return "", err
	}

	line, err := s.readLine(ctx)
	if err != nil {
		return "", errors.Wrapf(err, "motor %s: %s", s.name, cmd)
	}
	if msg, ok := strings.CutPrefix(line, "ERR"); ok {
		return "", errors.Errorf("motor %s: %s: %s", s.name, cmd, strings.TrimSpace(msg))
	}
	return line, nil
}

// send writes one command line. Must be called with mu held.
func (s *Serial) send(cmd string) error {
	if !s.connected {
		return errors.Wrapf(ErrNotConnected, "motor %s", s.name)
	}
	if _, err := fmt.Fprintf(s.conn, "%s\n", cmd); err != nil {
		return errors.Wrapf(err, "motor %s: failed to send %q", s.name, cmd)
	}
	return nil
}

// readLine returns the next non-empty line. Must be called with mu held.
func (s *Serial) readLine(ctx context.Context) (string, error) {
	chunk := make([]byte, 64)
	for {
		if i := bytes.IndexByte(s.buf, '\n'); i >= 0 {
			line := strings.TrimSpace(string(s.buf[:i]))
			s.buf = append(s.buf[:0], s.buf[i+1:]...)
			if line == "" {
				continue
			}
			return line, nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return "", ErrTimeout
			}
			return "", ctx.Err()
		default:
		}

		n, err := s.conn.Read(chunk)
		s.buf = append(s.buf, chunk[:n]...)
		if err != nil {
			return "", err
		}
	}
}

// Package relay drives relay controllers attached over a serial line.
//
// The wire protocol is line oriented ASCII:
//
//	host → controller:  SET <id> <0|1>
//	controller → host:  STATE <id> <0|1>
//	controller → host:  ERR <message>
//
// Any other line is ignored.
package relay

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"stage-command-center/internal/show"
)

// ErrInvalidID is returned for equipment ids that cannot be sent on the wire.
var ErrInvalidID = errors.New("relay: invalid equipment id")

// ErrClosed is returned by SendCommand after Close.
var ErrClosed = errors.New("relay: closed")

// Config holds serial port settings.
type Config struct {
	Port string
	Baud int
}

// Dispatcher implements show.Dispatcher over a serial relay controller.
type Dispatcher struct {
	port   io.ReadWriteCloser
	reader *bufio.Reader
	logger *slog.Logger

	writeMu sync.Mutex

	handlerMu sync.RWMutex
	handlers  map[uint64]func(show.StatusUpdate)
	nextID    uint64

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Open opens the serial port and starts reading status lines.
func Open(cfg Config, logger *slog.Logger) (*Dispatcher, error) {
	baud := cfg.Baud
	if baud == 0 {
		baud = 115200
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("relay: open %s: %w", cfg.Port, err)
	}
	// USB CDC ACM controllers wait for DTR before talking.
	_ = port.SetDTR(true)
	_ = port.SetRTS(true)
	return New(port, logger), nil
}

// ListPorts returns the serial ports present on this machine.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}

// New wraps an already open port.
func New(port io.ReadWriteCloser, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		port:     port,
		reader:   bufio.NewReader(port),
		logger:   logger.With("component", "relay"),
		handlers: make(map[uint64]func(show.StatusUpdate)),
		done:     make(chan struct{}),
	}
	d.wg.Add(1)
	go d.readLoop()
	return d
}

// SendCommand writes a SET line.
func (d *Dispatcher) SendCommand(cmd show.Command) error {
	line, err := formatSet(cmd)
	if err != nil {
		return err
	}
	select {
	case <-d.done:
		return ErrClosed
	default:
	}
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	if _, err := io.WriteString(d.port, line); err != nil {
		return fmt.Errorf("relay: write: %w", err)
	}
	return nil
}

// OnStatusUpdate registers fn for STATE lines.
func (d *Dispatcher) OnStatusUpdate(fn func(show.StatusUpdate)) func() {
	d.handlerMu.Lock()
	id := d.nextID
	d.nextID++
	d.handlers[id] = fn
	d.handlerMu.Unlock()
	return func() {
		d.handlerMu.Lock()
		delete(d.handlers, id)
		d.handlerMu.Unlock()
	}
}

// Close stops the read loop and closes the port.
func (d *Dispatcher) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.done)
		err = d.port.Close()
	})
	d.wg.Wait()
	return err
}

func (d *Dispatcher) readLoop() {
	defer d.wg.Done()

	backoff := 10 * time.Millisecond
	const maxBackoff = 5 * time.Second

	for {
		select {
		case <-d.done:
			return
		default:
		}

		line, err := d.reader.ReadString('\n')
		if err != nil {
			select {
			case <-d.done:
				return
			default:
			}
			if err == io.EOF || errors.Is(err, io.ErrClosedPipe) {
				d.logger.Warn("relay port closed")
				return
			}
			d.logger.Error("relay read error", "err", err)
			select {
			case <-time.After(backoff):
			case <-d.done:
				return
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = 10 * time.Millisecond

		u, ok, err := parseLine(line)
		if err != nil {
			d.logger.Warn("relay bad line", "line", strings.TrimSpace(line), "err", err)
			continue
		}
		if !ok {
			continue
		}
		d.dispatch(u)
	}
}

func (d *Dispatcher) dispatch(u show.StatusUpdate) {
	d.handlerMu.RLock()
	hs := make([]func(show.StatusUpdate), 0, len(d.handlers))
	for _, h := range d.handlers {
		hs = append(hs, h)
	}
	d.handlerMu.RUnlock()
	for _, h := range hs {
		h(u)
	}
}

func formatSet(cmd show.Command) (string, error) {
	if cmd.ID == "" || strings.ContainsAny(cmd.ID, " \t\r\n") {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, cmd.ID)
	}
	v := 0
	if cmd.State {
		v = 1
	}
	return fmt.Sprintf("SET %s %d\n", cmd.ID, v), nil
}

// parseLine returns ok=false for lines that carry no status.
func parseLine(line string) (show.StatusUpdate, bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return show.StatusUpdate{}, false, nil
	}
	switch strings.ToUpper(fields[0]) {
	case "STATE":
		if len(fields) != 3 {
			return show.StatusUpdate{}, false, fmt.Errorf("want 3 fields, got %d", len(fields))
		}
		switch fields[2] {
		case "1":
			return show.StatusUpdate{ID: fields[1], On: true}, true, nil
		case "0":
			return show.StatusUpdate{ID: fields[1], On: false}, true, nil
		}
		return show.StatusUpdate{}, false, fmt.Errorf("bad state %q", fields[2])
	case "ERR":
		return show.StatusUpdate{}, false, fmt.Errorf("controller: %s", strings.Join(fields[1:], " "))
	}
	return show.StatusUpdate{}, false, nil
}

// Package serialport provides the local serial transport for streaming to
// a CNC controller over USB or RS-232.
package serialport

import (
	"bufio"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// Port is an open serial connection. It implements stream.Transport.
type Port struct {
	name string
	log  logrus.FieldLogger

	mx   sync.Mutex
	port serial.Port
}

// Open opens a serial port at the given baud rate with 8N1 framing, the
// wiring every supported controller uses.
func Open(name string, baud int) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}

	return &Port{
		name: name,
		port: port,
		log:  logrus.WithField("port", name),
	}, nil
}

// Name returns the OS device name.
func (p *Port) Name() string { return p.name }

// Send writes one command's bytes to the port.
func (p *Port) Send(data []byte) error {
	p.mx.Lock()
	defer p.mx.Unlock()

	_, err := p.port.Write(data)
	if err != nil {
		return fmt.Errorf("write %s: %w", p.name, err)
	}
	return nil
}

// ReadLines delivers each response line to handler until the port closes
// or reading fails. The controller terminates every response unit with a
// newline, so line framing is the unit framing.
func (p *Port) ReadLines(handler func(line string)) error {
	scan := bufio.NewScanner(p.port)
	for scan.Scan() {
		line := strings.TrimRight(scan.Text(), "\r")
		if line == "" {
			continue
		}
		handler(line)
	}
	if err := scan.Err(); err != nil {
		p.log.WithError(err).Error("serial read failed")
		return fmt.Errorf("read %s: %w", p.name, err)
	}
	return nil
}

// Close closes the underlying port.
func (p *Port) Close() error {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.port.Close()
}

// ListPorts returns serial devices that look like CNC controllers:
// COMn on Windows, /dev/ttyUSB* and /dev/ttyACM* on Linux, and
// /dev/cu.usbserial-*, /dev/cu.usbmodem* on macOS.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}

	var out []string
	for _, name := range ports {
		if IsControllerPort(name) {
			out = append(out, name)
		}
	}
	return out, nil
}

// IsControllerPort reports whether a device name matches the patterns CNC
// controllers enumerate under.
func IsControllerPort(name string) bool {
	if strings.HasPrefix(name, "COM") && len(name) > 3 {
		for _, r := range name[3:] {
			if r < '0' || r > '9' {
				return false
			}
		}
		return true
	}
	return strings.HasPrefix(name, "/dev/ttyUSB") ||
		strings.HasPrefix(name, "/dev/ttyACM") ||
		strings.HasPrefix(name, "/dev/cu.usbserial-") ||
		strings.HasPrefix(name, "/dev/cu.usbmodem")
}

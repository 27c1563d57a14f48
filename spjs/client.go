// Package spjs connects to a Serial-Port-JSON-Server instance, a network
// bridge that exposes remote serial ports over a websocket. It provides an
// alternative transport for machines whose controller is plugged into
// another host.
package spjs

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/websocket"
)

// SerialPort describes a port advertised by the bridge.
type SerialPort struct {
	Name         string
	Friendly     string
	IsOpen       bool
	SerialNumber string
	VID          string `json:"UsbVid"`
	PID          string `json:"UsbPid"`
}

// bridgeData is the union of message shapes the bridge sends back.
type bridgeData struct {
	Version     string
	SerialPorts []SerialPort

	P   string
	D   string
	Cmd string
}

// Client maintains a websocket connection to the bridge, reconnecting on
// failure. Controller response lines arriving from any open port are
// delivered to the handler.
type Client struct {
	url     string
	log     logrus.FieldLogger
	handler func(port, line string)

	mx sync.Mutex
	ws *websocket.Conn

	ports chan []SerialPort
}

// NewClient creates a client for the bridge at url. The handler receives
// every controller response line along with the port it arrived on.
func NewClient(url string, handler func(port, line string)) *Client {
	c := &Client{
		url:     url,
		log:     logrus.WithField("component", "spjs"),
		handler: handler,
		ports:   make(chan []SerialPort, 1),
	}
	c.ports <- nil

	go func() {
		for range time.NewTicker(10 * time.Second).C {
			if err := c.command("list"); err != nil {
				c.log.WithError(err).Warn("port list refresh failed")
			}
		}
	}()

	return c
}

// Ports returns the most recent port list from the bridge.
func (c *Client) Ports() []SerialPort {
	ports := <-c.ports
	c.ports <- ports
	return ports
}

// OpenPort asks the bridge to open a remote serial port and returns a
// transport for it. The "default" buffer algorithm is requested: flow
// control is handled on this side, not by the bridge.
func (c *Client) OpenPort(name string, baud int) (*Port, error) {
	if err := c.command(fmt.Sprintf("open %s %d default", name, baud)); err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return &Port{cli: c, name: name}, nil
}

// command writes one bridge command, reconnecting once on failure.
func (c *Client) command(cmd string) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.write(cmd, true)
}

func (c *Client) write(cmd string, retry bool) error {
	if c.ws == nil {
		if err := c.reconnect(); err != nil {
			return err
		}
	}

	if _, err := c.ws.Write([]byte(cmd)); err != nil {
		c.ws.Close()
		c.ws = nil
		if !retry {
			return fmt.Errorf("write bridge: %w", err)
		}
		return c.write(cmd, false)
	}
	return nil
}

// reconnect dials the bridge and starts a fresh read loop. Callers hold
// the mutex.
func (c *Client) reconnect() error {
	c.log.WithField("url", c.url).Info("connecting to bridge")

	ws, err := websocket.Dial(c.url, "", "http://localhost")
	if err != nil {
		return fmt.Errorf("dial bridge: %w", err)
	}
	if _, err = ws.Write([]byte("list")); err != nil {
		ws.Close()
		return fmt.Errorf("write bridge (list): %w", err)
	}

	c.ws = ws
	go c.readLoop(ws)
	return nil
}

func (c *Client) readLoop(ws *websocket.Conn) {
	buf := make([]byte, 65536)
	for {
		n, err := ws.Read(buf)
		if err != nil {
			c.log.WithError(err).Error("bridge read failed")
			break
		}
		c.handleFrame(string(buf[:n]))
	}

	c.mx.Lock()
	if c.ws == ws {
		c.ws.Close()
		c.ws = nil
	}
	c.mx.Unlock()
}

func (c *Client) handleFrame(frame string) {
	if !strings.HasPrefix(frame, "{") {
		return
	}

	var data bridgeData
	if err := json.Unmarshal([]byte(frame), &data); err != nil {
		c.log.WithError(err).WithField("frame", frame).Debug("unparseable bridge frame")
		return
	}

	if data.SerialPorts != nil {
		<-c.ports
		c.ports <- data.SerialPorts
		return
	}

	// Controller payload: the bridge forwards whatever arrived on the
	// wire, so split it back into response units here.
	if data.P != "" && data.Cmd == "" && data.D != "" {
		for _, line := range strings.Split(data.D, "\n") {
			line = strings.TrimRight(line, "\r")
			if line == "" {
				continue
			}
			c.handler(data.P, line)
		}
	}
}

// Port is one remote serial port. It implements stream.Transport.
type Port struct {
	cli  *Client
	name string
}

// Name returns the remote device name.
func (p *Port) Name() string { return p.name }

// Send forwards one command's bytes to the remote port.
func (p *Port) Send(data []byte) error {
	text := strings.TrimRight(string(data), "\n")
	if err := p.cli.command(fmt.Sprintf("send %s %s\n", p.name, text)); err != nil {
		return fmt.Errorf("send %s: %w", p.name, err)
	}
	return nil
}

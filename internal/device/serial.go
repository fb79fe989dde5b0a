package device

import (
	"bufio"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate matches the DAQ unit's fixed line speed.
const DefaultBaudRate = 115200

// replyTimeout bounds how long a single command waits for its reply.
const replyTimeout = time.Second

// SerialDevice drives the DAQ unit over a USB serial line. The unit speaks a
// line-oriented ASCII protocol: each command is answered with a single
// "OK [value]" or "ERR <message>" line.
//
//	AIN <ch> <0|1>   -> OK <volts>     (1 selects long-settle sampling)
//	DOUT <ch> <0|1>  -> OK
//	DIN <ch>         -> OK <0|1>
//	CFG <ch>=<I|O>,...-> OK
//
// Not safe for concurrent use; callers wrap it in a Gate.
type SerialDevice struct {
	port serial.Port
	br   *bufio.Reader
}

// OpenSerial opens the DAQ on the named serial port.
func OpenSerial(portName string, baud int) (*SerialDevice, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	port, err := serial.Open(portName, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(replyTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return &SerialDevice{port: port, br: bufio.NewReader(port)}, nil
}

// command sends one line and returns the fields of the OK reply.
func (d *SerialDevice) command(line string) ([]string, error) {
	if _, err := d.port.Write([]byte(line + "\r\n")); err != nil {
		return nil, fmt.Errorf("write %q: %w", line, err)
	}
	reply, err := d.br.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read reply to %q: %w", line, err)
	}
	fields := strings.Fields(reply)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty reply to %q", line)
	}
	switch fields[0] {
	case "OK":
		return fields[1:], nil
	case "ERR":
		return nil, fmt.Errorf("device error for %q: %s", line, strings.Join(fields[1:], " "))
	default:
		return nil, fmt.Errorf("malformed reply to %q: %q", line, strings.TrimSpace(reply))
	}
}

// Configure sets digital channel directions.
func (d *SerialDevice) Configure(dirs map[int]Direction) error {
	if len(dirs) == 0 {
		return nil
	}
	// Sorted so the command line is deterministic.
	channels := make([]int, 0, len(dirs))
	for ch := range dirs {
		channels = append(channels, ch)
	}
	sort.Ints(channels)

	parts := make([]string, 0, len(channels))
	for _, ch := range channels {
		dir := "I"
		if dirs[ch] == DirOutput {
			dir = "O"
		}
		parts = append(parts, fmt.Sprintf("%d=%s", ch, dir))
	}
	_, err := d.command("CFG " + strings.Join(parts, ","))
	return err
}

// ReadAnalog returns the voltage on an analog channel.
func (d *SerialDevice) ReadAnalog(channel int, longSettle bool) (float64, error) {
	ls := 0
	if longSettle {
		ls = 1
	}
	fields, err := d.command(fmt.Sprintf("AIN %d %d", channel, ls))
	if err != nil {
		return 0, err
	}
	if len(fields) != 1 {
		return 0, fmt.Errorf("AIN %d: expected one value, got %v", channel, fields)
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("AIN %d: parse %q: %w", channel, fields[0], err)
	}
	return v, nil
}

// WriteDigital sets a digital output channel.
func (d *SerialDevice) WriteDigital(channel int, state bool) error {
	s := 0
	if state {
		s = 1
	}
	_, err := d.command(fmt.Sprintf("DOUT %d %d", channel, s))
	return err
}

// ReadDigital returns the state of a digital channel.
func (d *SerialDevice) ReadDigital(channel int) (bool, error) {
	fields, err := d.command(fmt.Sprintf("DIN %d", channel))
	if err != nil {
		return false, err
	}
	if len(fields) != 1 {
		return false, fmt.Errorf("DIN %d: expected one value, got %v", channel, fields)
	}
	switch fields[0] {
	case "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return false, fmt.Errorf("DIN %d: bad state %q", channel, fields[0])
	}
}

// Close closes the serial port.
func (d *SerialDevice) Close() error {
	return d.port.Close()
}

package serial

import (
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// PortInfo describes an enumerated serial device.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
}

type Port struct {
	port serial.Port
}

func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, err
	}
	return ports, nil
}

// DetailedPorts returns every serial device with its USB descriptor
// fields, so callers can match on vendor id.
func DetailedPorts() ([]PortInfo, error) {
	dd, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	ret := make([]PortInfo, 0, len(dd))
	for _, d := range dd {
		ret = append(ret, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
		})
	}
	return ret, nil
}

func OpenPort(port string, baud int) (*Port, error) {
	p, err := serial.Open(port, &serial.Mode{
		BaudRate: baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	err = p.SetReadTimeout(serial.NoTimeout)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	return &Port{port: p}, nil
}

func (p *Port) Close() error {
	return p.port.Close()
}

// Read blocks until at least one byte is available.
func (p *Port) Read(data []byte) (int, error) {
	return p.port.Read(data)
}

func (p *Port) Write(data []byte) (int, error) {
	return p.port.Write(data)
}

// ReadWithin reads into data until it is full or d elapses, then restores
// blocking mode. It returns however many bytes arrived; a short count is
// not an error.
func (p *Port) ReadWithin(data []byte, d time.Duration) (int, error) {
	if err := p.port.SetReadTimeout(d); err != nil {
		return 0, err
	}
	defer func() { _ = p.port.SetReadTimeout(serial.NoTimeout) }()
	n := 0
	deadline := time.Now().Add(d)
	for n < len(data) {
		m, err := p.port.Read(data[n:])
		if err != nil {
			return n, err
		}
		n += m
		// a zero-byte read means the timeout expired with nothing buffered
		if m == 0 || time.Now().After(deadline) {
			break
		}
	}
	return n, nil
}

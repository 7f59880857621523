package mixer

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/PercentBoat4164/HardwareMixer/comm/serial"
)

// Preamble is the identification string the hardware emits after the
// serial open resets it.
const Preamble = "Hardware Mixer"

// handshake trigger; the value only has to arrive, it is never inspected
// by the firmware.
const handshakeByte = 0x00

const (
	DefaultBaud         = 9600
	DefaultScanInterval = time.Second
	DefaultSettleDelay  = 2 * time.Second
)

// arduinoVendorIDs are the USB vendor ids accepted during discovery.
var arduinoVendorIDs = []string{"2341", "2A03", "1A86"}

type State int32

const (
	Disconnected State = iota
	Discovering
	Handshaking
	Connected
	Faulted
)

var stateNames = []string{
	Disconnected: "disconnected",
	Discovering:  "discovering",
	Handshaking:  "handshaking",
	Connected:    "connected",
	Faulted:      "faulted",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Sample is one complete reading of every slider, each level in [0, 1].
type Sample []float64

// Conn is the transport the session reads frames from. *serial.Port
// satisfies it.
type Conn interface {
	io.ReadWriteCloser
	ReadWithin(p []byte, d time.Duration) (int, error)
}

// Dialer locates and opens candidate mixer devices. The production
// implementation scans USB serial ports by vendor id.
type Dialer interface {
	Scan() ([]string, error)
	Dial(name string) (Conn, error)
}

// PortDialer is the production Dialer over go.bug.st/serial.
type PortDialer struct {
	Baud      int
	VendorIDs []string
}

func (d *PortDialer) Scan() ([]string, error) {
	vids := d.VendorIDs
	if len(vids) == 0 {
		vids = arduinoVendorIDs
	}
	ports, err := serial.DetailedPorts()
	if err != nil {
		return nil, err
	}
	var names []string
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		for _, vid := range vids {
			if p.VID == vid {
				names = append(names, p.Name)
				break
			}
		}
	}
	return names, nil
}

func (d *PortDialer) Dial(name string) (Conn, error) {
	baud := d.Baud
	if baud == 0 {
		baud = DefaultBaud
	}
	return serial.OpenPort(name, baud)
}

// Session owns the connection to one hardware mixer. It discovers the
// device, performs the handshake, and keeps the last complete sample
// available to concurrent readers. All transport failures are handled
// internally by rediscovery; callers of ReadSample only ever see a
// context error.
type Session struct {
	dialer       Dialer
	logger       *zap.Logger
	scanInterval time.Duration
	settleDelay  time.Duration

	state  atomic.Int32
	sample atomic.Pointer[Sample]

	// mu guards conn and channels: Connect runs on the pump goroutine
	// while Close is invoked by the owning process on shutdown
	mu       sync.Mutex
	conn     Conn
	channels int
}

type Option func(*Session)

func WithScanInterval(d time.Duration) Option {
	return func(s *Session) { s.scanInterval = d }
}

func WithSettleDelay(d time.Duration) Option {
	return func(s *Session) { s.settleDelay = d }
}

func New(dialer Dialer, logger *zap.Logger, opts ...Option) *Session {
	s := &Session{
		dialer:       dialer,
		logger:       logger,
		scanInterval: DefaultScanInterval,
		settleDelay:  DefaultSettleDelay,
	}
	for _, o := range opts {
		o(s)
	}
	empty := make(Sample, 0)
	s.sample.Store(&empty)
	return s
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// Channels reports the channel count from the most recent handshake. It
// is only meaningful while Connected and may change across a reconnect.
func (s *Session) Channels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channels
}

// Connect scans until a mixer is found, then handshakes with it. It has
// no timeout of its own: the hardware showing up is the exit condition,
// so it blocks until then or until ctx is cancelled. Any previously open
// transport is closed first.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()
	for {
		s.setState(Discovering)
		names, err := s.dialer.Scan()
		if err != nil {
			s.setState(Faulted)
			s.logger.Warn("port scan failed", zap.Error(err))
		}
		for _, name := range names {
			if err := ctx.Err(); err != nil {
				s.setState(Disconnected)
				return err
			}
			if s.tryDevice(ctx, name) {
				s.setState(Connected)
				s.logger.Info("mixer connected",
					zap.String("port", name),
					zap.Int("channels", s.Channels()))
				return nil
			}
		}
		select {
		case <-ctx.Done():
			s.setState(Disconnected)
			return ctx.Err()
		case <-time.After(s.scanInterval):
		}
	}
}

// tryDevice opens one candidate, waits out the open-triggered hardware
// reset, and checks the identification preamble. Short or mismatched
// reads are a non-match, never a failure.
func (s *Session) tryDevice(ctx context.Context, name string) bool {
	conn, err := s.dialer.Dial(name)
	if err != nil {
		s.logger.Debug("open failed", zap.String("port", name), zap.Error(err))
		return false
	}
	select {
	case <-ctx.Done():
		_ = conn.Close()
		return false
	case <-time.After(s.settleDelay):
	}

	s.setState(Handshaking)
	preamble := make([]byte, len(Preamble))
	n, err := conn.ReadWithin(preamble, s.settleDelay)
	if err != nil || n < len(Preamble) || string(preamble) != Preamble {
		s.logger.Debug("not a mixer", zap.String("port", name),
			zap.ByteString("preamble", preamble[:n]))
		_ = conn.Close()
		s.setState(Discovering)
		return false
	}

	if _, err := conn.Write([]byte{handshakeByte}); err != nil {
		s.logger.Debug("handshake write failed", zap.String("port", name), zap.Error(err))
		_ = conn.Close()
		s.setState(Discovering)
		return false
	}
	var count [1]byte
	n, err = conn.ReadWithin(count[:], s.settleDelay)
	if err != nil || n < 1 || count[0] == 0 {
		// without the count byte the frame length is indeterminate
		s.logger.Debug("handshake read failed", zap.String("port", name), zap.Error(err))
		_ = conn.Close()
		s.setState(Discovering)
		return false
	}

	s.mu.Lock()
	s.conn = conn
	s.channels = int(count[0])
	s.mu.Unlock()
	return true
}

// ReadSample blocks until the hardware emits the next frame, decodes it,
// and atomically replaces the stored sample. A transport error is never
// returned: the session transitions to Disconnected and reconnects,
// retrying until a frame is read or ctx is cancelled.
func (s *Session) ReadSample(ctx context.Context) (Sample, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.State() != Connected {
			if err := s.Connect(ctx); err != nil {
				return nil, err
			}
		}
		s.mu.Lock()
		conn, channels := s.conn, s.channels
		s.mu.Unlock()
		if conn == nil {
			// Close raced the read loop; rediscover or bail on ctx
			s.setState(Disconnected)
			continue
		}
		frame := make([]byte, channels)
		if _, err := io.ReadFull(conn, frame); err != nil {
			s.logger.Warn("mixer read failed, rediscovering", zap.Error(err))
			s.setState(Disconnected)
			if err := s.Connect(ctx); err != nil {
				return nil, err
			}
			continue
		}
		sample := decode(frame)
		s.sample.Store(&sample)
		s.logger.Debug("sample", zap.Float64s("levels", sample))
		return s.Snapshot(), nil
	}
}

// Pump drives the blocking read loop from a background goroutine and
// signals ch after every completed sample. The send is non-blocking, so
// a busy consumer coalesces wakeups; it still observes the latest sample
// because the replacement happens before the signal. Pump is the sole
// producer of wakeups and never inspects consumer state.
func (s *Session) Pump(ctx context.Context, ch chan<- struct{}) error {
	for {
		if _, err := s.ReadSample(ctx); err != nil {
			return err
		}
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Snapshot returns an independent copy of the last complete sample. It is
// safe to call concurrently with ReadSample: samples are replaced whole,
// never mutated in place.
func (s *Session) Snapshot() Sample {
	cur := *s.sample.Load()
	out := make(Sample, len(cur))
	copy(out, cur)
	return out
}

// Close releases the transport. The session is not usable afterwards.
func (s *Session) Close() error {
	s.setState(Disconnected)
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func decode(frame []byte) Sample {
	sample := make(Sample, len(frame))
	for i, b := range frame {
		v := float64(b) / 100
		if v > 1 {
			v = 1
		}
		sample[i] = v
	}
	return sample
}

package boardrun

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Transport is the serial connection to a board's console.
//
// Read has pyserial read(n) semantics: it blocks until buf is full or the
// configured read timeout elapses, and returns a short count (with a nil
// error) in the latter case. Callers treat a short read as "the board went
// quiet".
type Transport interface {
	Read(buf []byte) (int, error)
	SendBreak() error
	SetBreak(on bool) error
	FlushInput() error
	FlushOutput() error
	Close() error
}

// Opener opens the serial transport identified by device.
// The capture worker opens its own transport through an Opener so that the
// controller never holds the handle.
type Opener func(device string, config Config) (Transport, error)

// port is the termios implementation of Transport
type port struct {
	mu          sync.RWMutex
	fd          int
	readTimeout time.Duration
	closed      bool
}

// Ensure port implements Transport at compile time
var _ Transport = (*port)(nil)

// getBaudRate converts an integer baud rate to the unix constant
func getBaudRate(rate int) (uint32, error) {
	switch rate {
	case 1200:
		return unix.B1200, nil
	case 2400:
		return unix.B2400, nil
	case 4800:
		return unix.B4800, nil
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	case 460800:
		return unix.B460800, nil
	case 921600:
		return unix.B921600, nil
	case 1000000:
		return unix.B1000000, nil
	default:
		return 0, ErrInvalidBaudRate
	}
}

// Open opens a serial device with DefaultConfig adjusted by opts
func Open(device string, opts ...Option) (Transport, error) {
	config, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}
	return OpenConfig(device, config)
}

// OpenConfig opens a serial device in raw 8N1 mode. It is the default Opener.
func OpenConfig(device string, config Config) (Transport, error) {
	fd, err := unix.Open(device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		if errors.Is(err, unix.ENOENT) {
			return nil, fmt.Errorf("%w: %s", os.ErrNotExist, device)
		}
		return nil, fmt.Errorf("failed to open %s: %w", device, err)
	}

	if err := configurePort(fd, config); err != nil {
		unix.Close(fd)
		return nil, err
	}

	return &port{
		fd:          fd,
		readTimeout: config.ReadTimeout,
	}, nil
}

// configurePort puts the line into raw mode; timeouts are handled by poll in Read
func configurePort(fd int, config Config) error {
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("failed to get termios: %w", err)
	}

	termios.Cflag = unix.CS8 | unix.CREAD | unix.CLOCAL
	termios.Iflag = 0
	termios.Oflag = 0
	termios.Lflag = 0
	termios.Cc[unix.VMIN] = 0
	termios.Cc[unix.VTIME] = 0

	baudRate, err := getBaudRate(config.BaudRate)
	if err != nil {
		return err
	}
	termios.Cflag = (termios.Cflag &^ unix.CBAUD) | baudRate
	termios.Ispeed = baudRate
	termios.Ospeed = baudRate

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		return fmt.Errorf("failed to set termios: %w", err)
	}
	return nil
}

// Close closes the serial port
func (p *port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}
	err := unix.Close(p.fd)
	p.closed = true
	return err
}

// Read fills buf or returns what arrived before the read timeout
func (p *port) Read(buf []byte) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, ErrPortClosed
	}

	deadline := time.Now().Add(p.readTimeout)
	total := 0
	for total < len(buf) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}

		fds := []unix.PollFd{{Fd: int32(p.fd), Events: unix.POLLIN}}
		ready, err := unix.Poll(fds, int((remaining+time.Millisecond-1)/time.Millisecond))
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return total, fmt.Errorf("%w: poll: %v", ErrTransportFault, err)
		}
		if ready == 0 {
			break
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
			return total, fmt.Errorf("%w: device error", ErrTransportFault)
		}

		n, err := unix.Read(p.fd, buf[total:])
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			return total, fmt.Errorf("%w: read: %v", ErrTransportFault, err)
		}
		if n == 0 {
			// Readable with nothing to read: the USB device went away
			return total, fmt.Errorf("%w: device disconnected", ErrTransportFault)
		}
		total += n
	}
	return total, nil
}

// SendBreak asserts a break condition for the driver's default duration (tcsendbreak)
func (p *port) SendBreak() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPortClosed
	}
	return unix.IoctlSetInt(p.fd, unix.TCSBRK, 0)
}

// SetBreak holds or releases the break condition
func (p *port) SetBreak(on bool) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPortClosed
	}
	if on {
		return unix.IoctlSetInt(p.fd, unix.TIOCSBRK, 0)
	}
	return unix.IoctlSetInt(p.fd, unix.TIOCCBRK, 0)
}

// FlushInput discards any unread input data
func (p *port) FlushInput() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPortClosed
	}
	return unix.IoctlSetInt(p.fd, unix.TCFLSH, unix.TCIFLUSH)
}

// FlushOutput discards any unwritten output data
func (p *port) FlushOutput() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPortClosed
	}
	return unix.IoctlSetInt(p.fd, unix.TCFLSH, unix.TCOFLUSH)
}

// CloseTransport flushes both directions and closes t
func CloseTransport(t Transport) error {
	var errs []error
	if err := t.FlushInput(); err != nil {
		errs = append(errs, err)
	}
	if err := t.FlushOutput(); err != nil {
		errs = append(errs, err)
	}
	if err := t.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

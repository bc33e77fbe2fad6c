package bus

import (
	"fmt"
	"github.com/pkg/errors"
)

var (
	ErrTimeout   = errors.New("bus timeout")
	ErrClosed    = errors.New("bus closed")
	ErrShortRead = errors.New("short read")
)

// Bus reads and writes 8-bit registers of a single device on a two-wire addressed bus.
// Implementations are not required to be safe for concurrent use; wrap them in a Transport.
type Bus interface {
	Read(reg byte, length int) ([]byte, error)
	Write(reg byte, value byte) error
	Close() error
	String() string
}

// TransportError reports a failed register access. It is never retried by this package.
type TransportError struct {
	Op       string
	Register byte
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s register 0x%02X: %v", e.Op, e.Register, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err carries a TransportError anywhere in its chain.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func wrap(op string, reg byte, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Register: reg, Err: err}
}

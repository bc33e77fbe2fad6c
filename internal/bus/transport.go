package bus

import (
	"sync"
	"time"
)

const DefaultTimeout = 1000 * time.Millisecond

// Transport serializes access to a Bus and bounds every call by a timeout.
// A call that times out keeps the device reserved until the underlying
// operation returns, so a late completion never overlaps the next access.
type Transport struct {
	inner   Bus
	timeout time.Duration
	sem     chan struct{}

	mu     sync.Mutex
	closed bool
}

var _ Bus = (*Transport)(nil)

func NewTransport(inner Bus, timeout time.Duration) *Transport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Transport{
		inner:   inner,
		timeout: timeout,
		sem:     make(chan struct{}, 1),
	}
}

type result struct {
	data []byte
	err  error
}

func (t *Transport) do(op string, reg byte, fn func() ([]byte, error)) ([]byte, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil, wrap(op, reg, ErrClosed)
	}

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	select {
	case t.sem <- struct{}{}:
	case <-timer.C:
		return nil, wrap(op, reg, ErrTimeout)
	}

	done := make(chan result, 1)
	go func() {
		defer func() { <-t.sem }()
		data, err := fn()
		done <- result{data: data, err: err}
	}()

	select {
	case r := <-done:
		return r.data, wrap(op, reg, r.err)
	case <-timer.C:
		return nil, wrap(op, reg, ErrTimeout)
	}
}

// Read returns exactly length bytes starting at reg.
func (t *Transport) Read(reg byte, length int) ([]byte, error) {
	return t.do("read", reg, func() ([]byte, error) {
		data, err := t.inner.Read(reg, length)
		if err == nil && len(data) < length {
			err = ErrShortRead
		}
		return data, err
	})
}

func (t *Transport) Write(reg byte, value byte) error {
	_, err := t.do("write", reg, func() ([]byte, error) {
		return nil, t.inner.Write(reg, value)
	})
	return err
}

// Close waits for an in-flight operation (bounded by the timeout) and closes the underlying bus.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	select {
	case t.sem <- struct{}{}:
		defer func() { <-t.sem }()
	case <-time.After(t.timeout):
	}
	return t.inner.Close()
}

func (t *Transport) String() string {
	return t.inner.String()
}

// Package safe_close coordinates the shutdown of a service and all
// its sub goroutines. CloseWait returns only after every attached
// goroutine has exited.
package safe_close

import "sync"

type SafeClose struct {
	m           sync.Mutex
	wg          sync.WaitGroup
	closeSignal chan struct{}
	done        chan struct{}
	doneOnce    sync.Once
	closeErr    error
}

func NewSafeClose() *SafeClose {
	return &SafeClose{
		closeSignal: make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// SendCloseSignal asks the service to close. Only the first non-nil
// err is kept. It is concurrent safe and can be called multiple times.
func (s *SafeClose) SendCloseSignal(err error) {
	s.m.Lock()
	defer s.m.Unlock()

	select {
	case <-s.closeSignal:
	default:
		if err != nil {
			s.closeErr = err
		}
		close(s.closeSignal)
	}
}

// Err returns the error kept by SendCloseSignal.
func (s *SafeClose) Err() error {
	s.m.Lock()
	defer s.m.Unlock()
	return s.closeErr
}

func (s *SafeClose) ReceiveCloseSignal() <-chan struct{} {
	return s.closeSignal
}

// Attach starts f in a new goroutine tracked by CloseWait. f must
// watch closeSignal and call done before returning. If the service
// was already closed f does not run.
func (s *SafeClose) Attach(f func(done func(), closeSignal <-chan struct{})) {
	s.m.Lock()
	select {
	case <-s.closeSignal:
		s.m.Unlock()
		return
	default:
		s.wg.Add(1)
	}
	s.m.Unlock()

	go f(s.wg.Done, s.closeSignal)
}

// Done marks the main service goroutine finished. Concurrent safe,
// may be called multiple times.
func (s *SafeClose) Done() {
	s.doneOnce.Do(func() {
		close(s.done)
	})
}

// CloseWait sends a close signal and blocks until Done was called and
// every attached goroutine has exited. It must not be called from an
// attached goroutine, that would deadlock.
func (s *SafeClose) CloseWait() {
	s.SendCloseSignal(nil)
	s.wg.Wait()
	<-s.done
}

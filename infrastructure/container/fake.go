package container

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// FakeDriver is an in-process Driver used by scheduler and runner tests so
// they can exercise §8's scenarios without a real docker daemon. It
// interprets a small subset of shell commands directly: "sleep N",
// "exit N", and anything else is treated as a successful no-op (mirroring
// "echo hi" style fixtures used throughout the test suite).
type FakeDriver struct {
	mutex   sync.Mutex
	pulled  []string
	handles map[*Handle]*fakeState
}

type fakeState struct {
	stopped chan struct{}
	killed  chan struct{}
}

func NewFakeDriver() *FakeDriver {
	return &FakeDriver{handles: make(map[*Handle]*fakeState)}
}

func (f *FakeDriver) Pulled() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]string(nil), f.pulled...)
}

func (f *FakeDriver) Pull(ctx context.Context, image string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.pulled = append(f.pulled, image)
	return nil
}

func (f *FakeDriver) Run(ctx context.Context, spec RunSpec) (*Handle, error) {
	h := &Handle{name: spec.Image, done: make(chan struct{})}
	state := &fakeState{stopped: make(chan struct{}), killed: make(chan struct{})}
	f.mutex.Lock()
	f.handles[h] = state
	f.mutex.Unlock()

	if spec.LogFile != "" {
		if lf, err := os.OpenFile(spec.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			lf.Close()
		}
	}

	go f.run(h, state, spec)
	return h, nil
}

func (f *FakeDriver) run(h *Handle, state *fakeState, spec RunSpec) {
	cmd := strings.TrimSpace(spec.Command)
	switch {
	case strings.HasPrefix(cmd, "sleep "):
		var seconds float64
		fmt.Sscanf(strings.TrimPrefix(cmd, "sleep "), "%f", &seconds)
		select {
		case <-time.After(time.Duration(seconds * float64(time.Second))):
			h.exitCode = 0
		case <-state.stopped:
			h.exitCode = 143
		case <-state.killed:
			h.exitCode = 137
		}
	case strings.HasPrefix(cmd, "exit "):
		var code int
		fmt.Sscanf(strings.TrimPrefix(cmd, "exit "), "%d", &code)
		h.exitCode = code
	default:
		h.exitCode = 0
	}
	h.waited = true
	close(h.done)
}

func (f *FakeDriver) Stop(ctx context.Context, h *Handle, graceSeconds int64) error {
	f.mutex.Lock()
	state, ok := f.handles[h]
	f.mutex.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-state.stopped:
	default:
		close(state.stopped)
	}
	return nil
}

func (f *FakeDriver) Kill(ctx context.Context, h *Handle) error {
	f.mutex.Lock()
	state, ok := f.handles[h]
	f.mutex.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-state.killed:
	default:
		close(state.killed)
	}
	return nil
}

func (f *FakeDriver) Wait(h *Handle) (int, error) {
	<-h.done
	return h.exitCode, nil
}

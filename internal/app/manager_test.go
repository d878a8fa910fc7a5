package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bft-labs/dripfeed/internal/domain"
	"github.com/bft-labs/dripfeed/pkg/log"
)

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish")
	}
}

func TestManager_RunsSessionInBackground(t *testing.T) {
	h := newHarness(TransmitterConfig{})
	m := NewManager(context.Background(), h.tx, log.NewNop())
	path := writeProgram(t, "G21\nG90\n")

	info, done := m.Start(domain.Request{FilePath: path, Address: "/dev/ttyUSB0", Speed: 115200}, h.sink)
	if info.ID == "" {
		t.Fatal("empty session ID")
	}
	waitDone(t, done)

	got, err := m.Get(info.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != domain.StateCompleted.String() {
		t.Errorf("state = %s, want Completed", got.State)
	}
	if got.Percent != 100 {
		t.Errorf("percent = %d, want 100", got.Percent)
	}
	if got.Finished.IsZero() || got.Error != "" {
		t.Errorf("info = %+v", got)
	}
	if h.sink.Count(domain.EventComplete) != 1 {
		t.Error("completion not forwarded")
	}
}

func TestManager_RecordsFailure(t *testing.T) {
	h := newHarness(TransmitterConfig{})
	m := NewManager(context.Background(), h.tx, nil)

	info, done := m.Start(domain.Request{Address: "", Speed: 115200}, nil)
	waitDone(t, done)

	got, _ := m.Get(info.ID)
	if got.State != domain.StateFailed.String() {
		t.Errorf("state = %s, want Failed", got.State)
	}
	if got.Error != "Please select a COM port before starting." {
		t.Errorf("error = %q", got.Error)
	}
}

func TestManager_Cancel(t *testing.T) {
	h := newHarness(TransmitterConfig{})
	h.channel.blockOn = 1
	started := make(chan struct{})
	h.channel.onWrite = func(int) { close(started) }
	m := NewManager(context.Background(), h.tx, nil)
	path := writeProgram(t, "G21\n")

	info, done := m.Start(domain.Request{FilePath: path, Address: "/dev/ttyUSB0", Speed: 115200}, h.sink)
	<-started

	if err := m.Cancel(info.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	waitDone(t, done)

	got, _ := m.Get(info.ID)
	if got.Error != "cancelled" {
		t.Errorf("error = %q, want cancelled", got.Error)
	}
	if err := m.Cancel("nope"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("Cancel(unknown) = %v", err)
	}
	if _, err := m.Get("nope"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("Get(unknown) = %v", err)
	}
}

func TestManager_SessionOutlivesCallerContext(t *testing.T) {
	h := newHarness(TransmitterConfig{})
	m := NewManager(context.Background(), h.tx, nil)
	path := writeProgram(t, "G21\nG90\n")

	// Start does not take a request context; a finished HTTP handler
	// therefore cannot stop the session.
	_, done := m.Start(domain.Request{FilePath: path, Address: "/dev/ttyUSB0", Speed: 115200}, h.sink)
	waitDone(t, done)
	if h.sink.Count(domain.EventComplete) != 1 {
		t.Error("session did not complete")
	}
}

func TestManager_Shutdown(t *testing.T) {
	h := newHarness(TransmitterConfig{})
	h.channel.blockOn = 1
	started := make(chan struct{})
	h.channel.onWrite = func(int) { close(started) }
	m := NewManager(context.Background(), h.tx, nil)
	path := writeProgram(t, "G21\n")

	_, done := m.Start(domain.Request{FilePath: path, Address: "/dev/ttyUSB0", Speed: 115200}, h.sink)
	<-started

	if err := m.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	waitDone(t, done)
	if h.channel.Closed() != 1 {
		t.Error("port not released on shutdown")
	}
}

func TestManager_ShutdownTimeout(t *testing.T) {
	h := newHarness(TransmitterConfig{})
	release := make(chan struct{})
	started := make(chan struct{})
	h.channel.onWrite = func(int) {
		close(started)
		<-release
	}
	m := NewManager(context.Background(), h.tx, nil)
	path := writeProgram(t, "G21\n")

	_, done := m.Start(domain.Request{FilePath: path, Address: "/dev/ttyUSB0", Speed: 115200}, nil)
	defer func() {
		close(release)
		waitDone(t, done)
	}()

	<-started
	if err := m.Shutdown(10 * time.Millisecond); err != domain.ErrShutdownTimeout {
		t.Errorf("Shutdown = %v, want ErrShutdownTimeout", err)
	}
}

func TestManager_ListNewestFirstAndPrunes(t *testing.T) {
	h := newHarness(TransmitterConfig{})
	m := NewManager(context.Background(), h.tx, nil)
	m.history = 2

	var ids []string
	for i := 0; i < 4; i++ {
		info, done := m.Start(domain.Request{Address: "", Speed: 1}, nil)
		waitDone(t, done)
		ids = append(ids, info.ID)
		time.Sleep(2 * time.Millisecond)
	}

	list := m.List()
	if len(list) != 2 {
		t.Fatalf("len(List) = %d, want 2", len(list))
	}
	if list[0].ID != ids[3] || list[1].ID != ids[2] {
		t.Errorf("List order = %s, %s", list[0].ID, list[1].ID)
	}
}

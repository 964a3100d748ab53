package pcmio

import (
	"os"
	"sync/atomic"
	"testing"
	"time"

	"bluealsa-go/internal/bttest"
)

func mustPipe(t *testing.T) (r, w *os.File) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe() error: %v", err)
	}
	t.Cleanup(func() {
		r.Close()
		w.Close()
	})
	return r, w
}

func TestPollAndReadPCMReadsData(t *testing.T) {
	pcmR, pcmW := mustPipe(t)
	ctrlR, _ := mustPipe(t)

	if _, err := pcmW.Write([]byte("pcm-frame")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	var stopping atomic.Bool
	buf := make([]byte, 64)
	n, err := PollAndReadPCM(int(pcmR.Fd()), int(ctrlR.Fd()), buf, time.Second, nil, &stopping)
	if err != nil {
		t.Fatalf("PollAndReadPCM() error: %v", err)
	}
	if string(buf[:n]) != "pcm-frame" {
		t.Fatalf("PollAndReadPCM() = %q, want %q", buf[:n], "pcm-frame")
	}
}

func TestPollAndReadPCMTimeoutReturnsZero(t *testing.T) {
	pcmR, _ := mustPipe(t)
	ctrlR, _ := mustPipe(t)

	var stopping atomic.Bool
	buf := make([]byte, 64)
	n, err := PollAndReadPCM(int(pcmR.Fd()), int(ctrlR.Fd()), buf, 100*time.Millisecond, nil, &stopping)
	if err != nil {
		t.Fatalf("PollAndReadPCM() error: %v", err)
	}
	if n != 0 {
		t.Fatalf("PollAndReadPCM() n = %d, want 0", n)
	}
}

func TestPollAndReadPCMStoppingReturnsImmediately(t *testing.T) {
	pcmR, _ := mustPipe(t)
	ctrlR, _ := mustPipe(t)

	var stopping atomic.Bool
	stopping.Store(true)

	buf := make([]byte, 64)
	start := time.Now()
	_, err := PollAndReadPCM(int(pcmR.Fd()), int(ctrlR.Fd()), buf, 5*time.Second, nil, &stopping)
	if err != ErrStopping {
		t.Fatalf("PollAndReadPCM() error = %v, want ErrStopping", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("PollAndReadPCM() took too long to observe stopping flag")
	}
}

func TestPollAndReadPCMControlSignalConsumedThenReadsData(t *testing.T) {
	pcmR, pcmW := mustPipe(t)
	ctrlR, ctrlW := mustPipe(t)

	if _, err := ctrlW.Write([]byte{byte(SigPCMOpen)}); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		pcmW.Write([]byte("after-signal"))
	}()

	var consumedSignal Signal
	filter := func(sig Signal) (bool, error) {
		consumedSignal = sig
		return true, nil
	}

	var stopping atomic.Bool
	buf := make([]byte, 64)
	n, err := PollAndReadPCM(int(pcmR.Fd()), int(ctrlR.Fd()), buf, 2*time.Second, filter, &stopping)
	if err != nil {
		t.Fatalf("PollAndReadPCM() error: %v", err)
	}
	if consumedSignal != SigPCMOpen {
		t.Fatalf("filter saw signal %v, want SigPCMOpen", consumedSignal)
	}
	if string(buf[:n]) != "after-signal" {
		t.Fatalf("PollAndReadPCM() = %q, want %q", buf[:n], "after-signal")
	}
}

func TestPollAndReadPCMCodecChangeSurfacesESTALE(t *testing.T) {
	pcmR, _ := mustPipe(t)
	ctrlR, ctrlW := mustPipe(t)

	if _, err := ctrlW.Write([]byte{byte(SigCodecChange)}); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	filter := func(sig Signal) (bool, error) {
		if sig == SigCodecChange {
			return true, ErrESTALE
		}
		return false, nil
	}

	var stopping atomic.Bool
	buf := make([]byte, 64)
	_, err := PollAndReadPCM(int(pcmR.Fd()), int(ctrlR.Fd()), buf, time.Second, filter, &stopping)
	if err != ErrESTALE {
		t.Fatalf("PollAndReadPCM() error = %v, want ErrESTALE", err)
	}
}

func TestPollAndReadBTReadsDatagram(t *testing.T) {
	pair, err := bttest.NewPair()
	if err != nil {
		t.Fatalf("NewPair() error: %v", err)
	}
	defer pair.Close()

	if _, err := pair.Remote.Write([]byte("bt-datagram")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	var stopping atomic.Bool
	buf := make([]byte, 64)
	n, err := PollAndReadBT(int(pair.Local.Fd()), buf, time.Second, &stopping)
	if err != nil {
		t.Fatalf("PollAndReadBT() error: %v", err)
	}
	if string(buf[:n]) != "bt-datagram" {
		t.Fatalf("PollAndReadBT() = %q, want %q", buf[:n], "bt-datagram")
	}
}

func TestPollAndReadBTTimeoutReturnsZero(t *testing.T) {
	pair, err := bttest.NewPair()
	if err != nil {
		t.Fatalf("NewPair() error: %v", err)
	}
	defer pair.Close()

	var stopping atomic.Bool
	buf := make([]byte, 64)
	n, err := PollAndReadBT(int(pair.Local.Fd()), buf, 100*time.Millisecond, &stopping)
	if err != nil {
		t.Fatalf("PollAndReadBT() error: %v", err)
	}
	if n != 0 {
		t.Fatalf("PollAndReadBT() n = %d, want 0", n)
	}
}

func TestPollAndReadBTStoppingReturnsImmediately(t *testing.T) {
	pair, err := bttest.NewPair()
	if err != nil {
		t.Fatalf("NewPair() error: %v", err)
	}
	defer pair.Close()

	var stopping atomic.Bool
	stopping.Store(true)

	buf := make([]byte, 64)
	_, err = PollAndReadBT(int(pair.Local.Fd()), buf, 5*time.Second, &stopping)
	if err != ErrStopping {
		t.Fatalf("PollAndReadBT() error = %v, want ErrStopping", err)
	}
}

func TestPollAndReadBTRemoteCloseReturnsZero(t *testing.T) {
	pair, err := bttest.NewPair()
	if err != nil {
		t.Fatalf("NewPair() error: %v", err)
	}
	defer pair.Local.Close()
	pair.Remote.Close()

	var stopping atomic.Bool
	buf := make([]byte, 64)
	n, err := PollAndReadBT(int(pair.Local.Fd()), buf, time.Second, &stopping)
	if err != nil {
		t.Fatalf("PollAndReadBT() error: %v", err)
	}
	if n != 0 {
		t.Fatalf("PollAndReadBT() n = %d, want 0 (remote closed)", n)
	}
}

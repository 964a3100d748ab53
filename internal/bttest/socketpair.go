// Package bttest provides an in-process stand-in for a BlueZ-acquired
// BT transport socket, so the codec workers and transport FSM can be
// exercised end-to-end without a real Bluetooth adapter.
//
// It is grounded on two things from the retrieval pack: the shape of
// flowpbx-flowpbx's internal/media/proxy.go SocketPair (a small struct
// bundling a pair of connected sockets with a single Close), and
// golang.org/x/sys/unix.Socketpair, the same syscall-plumbing package
// doismellburning-samoyed uses for its device/control-line code.
//
// A real BT SCO/A2DP transport socket is SOCK_SEQPACKET: datagram
// boundaries are preserved, like a UDP socket but connection-oriented
// and reliable. unix.Socketpair(AF_UNIX, SOCK_SEQPACKET, 0) gives an
// equivalent pair of connected, boundary-preserving local sockets.
package bttest

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Pair is a connected pair of SOCK_SEQPACKET file descriptors
// wrapped as *os.File so they can be used with the poll primitives in
// internal/pcmio (which operate on a plain fd).
type Pair struct {
	Local  *os.File
	Remote *os.File
}

// NewPair creates a connected SEQPACKET socket pair. Local plays the
// role of the transport manager's end (what the codec workers read
// and write); Remote plays the role of the BlueZ/kernel-owned peer a
// test drives directly to inject or observe datagrams.
func NewPair() (*Pair, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	if err != nil {
		return nil, fmt.Errorf("socketpair: %w", err)
	}
	return &Pair{
		Local:  os.NewFile(uintptr(fds[0]), "bttest-local"),
		Remote: os.NewFile(uintptr(fds[1]), "bttest-remote"),
	}, nil
}

// Close closes both ends of the pair.
func (p *Pair) Close() error {
	err1 := p.Local.Close()
	err2 := p.Remote.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// MTU returns a representative write MTU for the pair (the value a
// real A2DP transport typically negotiates), so tests don't need to
// pick one out of thin air.
const MTU = 672

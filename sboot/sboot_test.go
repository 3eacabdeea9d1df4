package sboot

import (
	"context"
	"testing"
	"time"

	"github.com/wrongbaud/tcbsl/device"
	"github.com/wrongbaud/tcbsl/hw/canlink"
	"github.com/wrongbaud/tcbsl/hw/phyline"
)

func newTestShell(t *testing.T) (*Shell, *canlink.Sim) {
	t.Helper()
	can, peer := canlink.NewSimPair()
	dev := &device.Device{CAN: can, Line: phyline.Null{}}
	shell := New(dev, Config{PWMSettle: time.Millisecond, NoneMsgThreshold: 4})
	return shell, peer
}

// TestEnterShellTolerantPath exercises the default (non-strict)
// induction path: the simulated device answers both expected acks on
// id 0x7E8, and EnterShell must return with no error.
func TestEnterShellTolerantPath(t *testing.T) {
	shell, peer := newTestShell(t)

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- shell.EnterShell(ctx)
	}()

	// Drain "59 45" (discarded by the driver) and "6b".
	if _, err := peer.Recv(time.Second); err != nil {
		t.Fatalf("recv 59 45: %v", err)
	}
	if _, err := peer.Recv(time.Second); err != nil {
		t.Fatalf("recv 6b: %v", err)
	}

	ack := canlink.Frame{ID: rawReplyID, Data: []byte{positiveAck}}
	if err := peer.Send(ack); err != nil {
		t.Fatalf("send ack 1: %v", err)
	}
	if err := peer.Send(ack); err != nil {
		t.Fatalf("send ack 2: %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("EnterShell: %v", err)
	}
}

// TestEnterShellToleratesSilence confirms the tolerant induction path
// proceeds once NoneMsgThreshold consecutive empty receive windows
// elapse, even with zero acks observed (testable property 6).
func TestEnterShellToleratesSilence(t *testing.T) {
	shell, peer := newTestShell(t)

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- shell.EnterShell(ctx)
	}()

	if _, err := peer.Recv(time.Second); err != nil {
		t.Fatalf("recv 59 45: %v", err)
	}
	if _, err := peer.Recv(time.Second); err != nil {
		t.Fatalf("recv 6b: %v", err)
	}
	// Send nothing further; the tolerant path must give up waiting
	// after NoneMsgThreshold empty windows and return successfully.

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("EnterShell: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("EnterShell did not return within the timeout")
	}
}

func TestRetrieveSeedAndSubmitKey(t *testing.T) {
	shell, peer := newTestShell(t)

	go func() {
		// Drain the handshake frames and ack immediately so the test
		// can move straight on to seed/key exchange.
		peer.Recv(time.Second)
		peer.Recv(time.Second)
		ack := canlink.Frame{ID: rawReplyID, Data: []byte{positiveAck}}
		peer.Send(ack)
		peer.Send(ack)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shell.EnterShell(ctx); err != nil {
		t.Fatalf("EnterShell: %v", err)
	}

	seedDone := make(chan error, 1)
	go func() {
		// 12 elevate frames, then one seed-request frame, to drain.
		for i := 0; i < 13; i++ {
			if _, err := peer.Recv(time.Second); err != nil {
				seedDone <- err
				return
			}
		}
		reply := pad7([]byte{0x11, 0x22, 0x33, 0x44})
		seedDone <- peer.Send(canlink.Frame{ID: rawReplyID, Data: reply})
	}()

	seed, err := shell.RetrieveSeed(ctx)
	if err != nil {
		t.Fatalf("RetrieveSeed: %v", err)
	}
	if err := <-seedDone; err != nil {
		t.Fatalf("seed harness: %v", err)
	}
	if len(seed) < 4 || seed[0] != 0x11 {
		t.Fatalf("seed = %x, want to start with 11", seed)
	}

	keyDone := make(chan error, 1)
	go func() {
		if _, err := peer.Recv(time.Second); err != nil {
			keyDone <- err
			return
		}
		keyDone <- peer.Send(canlink.Frame{ID: rawReplyID, Data: pad7([]byte{positiveAck})})
	}()

	if err := shell.SubmitKey([4]byte{0xAA, 0xBB, 0xCC, 0xDD}); err != nil {
		t.Fatalf("SubmitKey: %v", err)
	}
	if err := <-keyDone; err != nil {
		t.Fatalf("key harness: %v", err)
	}
}

// pad7 builds a single-frame ISO-TP PDU carrying data as its payload.
func pad7(data []byte) []byte {
	out := make([]byte, 8)
	for i := range out {
		out[i] = 0x55
	}
	out[0] = byte(len(data))
	copy(out[1:], data)
	return out
}

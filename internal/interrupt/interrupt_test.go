package interrupt

import (
	"errors"
	"testing"
)

type fakeCanceller struct {
	calls int
	err   error
}

func (f *fakeCanceller) Interrupt() error {
	f.calls++
	return f.err
}

func TestController_OneClearPerSpeechStarted(t *testing.T) {
	fc := &fakeCanceller{}
	c := New(fc)
	for i := 0; i < 5; i++ {
		c.OnSpeechStarted()
	}
	if fc.calls != 5 {
		t.Fatalf("expected 5 clear commands, got %d", fc.calls)
	}
	if c.Clears() != 5 {
		t.Fatalf("expected 5 recorded clears, got %d", c.Clears())
	}
}

func TestController_AdapterErrorIsSwallowed(t *testing.T) {
	fc := &fakeCanceller{err: errors.New("socket gone")}
	c := New(fc)
	c.OnSpeechStarted()
	if fc.calls != 1 {
		t.Fatalf("expected the clear to still be attempted")
	}
}

package listener

import (
	"testing"
	"time"
)

func TestThrottleOneLogPerWindow(t *testing.T) {
	th := newThrottle(60 * time.Second)
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	if !th.allow("192.168.1.50", now) {
		t.Fatal("first attempt must be allowed")
	}
	if th.allow("192.168.1.50", now.Add(10*time.Second)) {
		t.Fatal("second attempt inside the window must be suppressed")
	}
	if !th.allow("192.168.1.50", now.Add(75*time.Second)) {
		t.Fatal("attempt after the window elapsed must be allowed again")
	}
}

func TestThrottleIsPerAddress(t *testing.T) {
	th := newThrottle(60 * time.Second)
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	if !th.allow("192.168.1.50", now) {
		t.Fatal("first address suppressed")
	}
	if !th.allow("192.168.1.51", now) {
		t.Fatal("second address must have its own window")
	}
}

package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRateLimiterSixthSendRejected(t *testing.T) {
	limiter := NewRateLimiter(5, 10*time.Second)
	userID := uuid.New()

	for i := 0; i < 5; i++ {
		if !limiter.Allow(userID) {
			t.Fatalf("send %d should be allowed", i+1)
		}
	}
	if limiter.Allow(userID) {
		t.Fatal("sixth send within the window should be rejected")
	}
}

func TestRateLimiterRejectionDoesNotConsumeSlot(t *testing.T) {
	limiter := NewRateLimiter(2, 50*time.Millisecond)
	userID := uuid.New()

	limiter.Allow(userID)
	limiter.Allow(userID)

	// Hammering while full must not extend the lockout.
	for i := 0; i < 10; i++ {
		if limiter.Allow(userID) {
			t.Fatal("send should be rejected while the window is full")
		}
	}

	time.Sleep(60 * time.Millisecond)
	if !limiter.Allow(userID) {
		t.Fatal("send should be allowed after the window slides")
	}
}

func TestRateLimiterPerUserIsolation(t *testing.T) {
	limiter := NewRateLimiter(1, 10*time.Second)
	a, b := uuid.New(), uuid.New()

	if !limiter.Allow(a) {
		t.Fatal("first send for user A should be allowed")
	}
	if limiter.Allow(a) {
		t.Fatal("second send for user A should be rejected")
	}
	if !limiter.Allow(b) {
		t.Fatal("user B has an independent budget")
	}
}

func TestRateLimiterReset(t *testing.T) {
	limiter := NewRateLimiter(1, 10*time.Second)
	userID := uuid.New()

	limiter.Allow(userID)
	if limiter.Allow(userID) {
		t.Fatal("second send should be rejected")
	}

	limiter.Reset(userID)
	if !limiter.Allow(userID) {
		t.Fatal("send should be allowed after reset")
	}
}

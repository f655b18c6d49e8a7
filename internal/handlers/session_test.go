package handlers

import (
	"testing"
	"time"
)

func newClockStore(ttl time.Duration) (*SessionStore, *time.Time) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewSessionStore(ttl)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestSessionSlidingExpiry(t *testing.T) {
	s, now := newClockStore(time.Hour)
	sess := s.Create("admin", true)

	*now = now.Add(50 * time.Minute)
	if _, ok := s.Touch(sess.Token); !ok {
		t.Fatal("session expired before its ttl")
	}

	// Touch pushed the expiry out, so this is still inside the window.
	*now = now.Add(50 * time.Minute)
	if _, ok := s.Touch(sess.Token); !ok {
		t.Fatal("Touch did not extend the session")
	}

	*now = now.Add(2 * time.Hour)
	if _, ok := s.Touch(sess.Token); ok {
		t.Error("idle session is still valid")
	}
}

func TestSessionUploads(t *testing.T) {
	s, _ := newClockStore(time.Hour)
	sess := s.Create("", false)

	if prev, ok := s.SetUpload(sess.Token, "/tmp/a"); !ok || prev != "" {
		t.Fatalf("SetUpload = (%q, %v), want empty previous", prev, ok)
	}
	if prev, _ := s.SetUpload(sess.Token, "/tmp/b"); prev != "/tmp/a" {
		t.Errorf("previous upload = %q, want /tmp/a", prev)
	}
	if got := s.TakeUpload(sess.Token); got != "/tmp/b" {
		t.Errorf("TakeUpload = %q, want /tmp/b", got)
	}
	if got := s.TakeUpload(sess.Token); got != "" {
		t.Errorf("second TakeUpload = %q, want empty", got)
	}
	if _, ok := s.SetUpload("unknown", "/tmp/c"); ok {
		t.Error("SetUpload on an unknown token succeeded")
	}
}

func TestSessionCleanup(t *testing.T) {
	s, now := newClockStore(time.Minute)
	old := s.Create("", false)
	s.SetUpload(old.Token, "/tmp/old")

	*now = now.Add(30 * time.Second)
	fresh := s.Create("", false)

	*now = now.Add(45 * time.Second)
	uploads := s.Cleanup()

	if len(uploads) != 1 || uploads[0] != "/tmp/old" {
		t.Errorf("Cleanup uploads = %v, want [/tmp/old]", uploads)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
	if _, ok := s.Touch(fresh.Token); !ok {
		t.Error("fresh session was cleaned up")
	}
}

func TestSessionDelete(t *testing.T) {
	s, _ := newClockStore(time.Hour)
	sess := s.Create("admin", true)
	s.SetUpload(sess.Token, "/tmp/q")

	if got := s.Delete(sess.Token); got != "/tmp/q" {
		t.Errorf("Delete = %q, want the pending upload", got)
	}
	if _, ok := s.Touch(sess.Token); ok {
		t.Error("deleted session is still valid")
	}
	if got := s.Delete(sess.Token); got != "" {
		t.Errorf("second Delete = %q, want empty", got)
	}
}

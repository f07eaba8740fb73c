package config

import "testing"

func TestConfig_PerQueueOverride(t *testing.T) {
	c := New()
	c.Set("heartbeat", "60")
	c.Set("critical-heartbeat", "10")

	if got := c.Heartbeat("critical"); got != 10 {
		t.Fatalf("want 10, got %v", got)
	}
	if got := c.Heartbeat("other"); got != 60 {
		t.Fatalf("want 60, got %v", got)
	}
	if got := c.Heartbeat("nothing-configured"); got != 60 {
		t.Fatalf("want default 60, got %v", got)
	}
}

func TestConfig_UnsetRemovesKey(t *testing.T) {
	c := New()
	c.Set("jobs-history", "100")
	if _, ok := c.Get("jobs-history"); !ok {
		t.Fatal("expected key to be set")
	}
	c.Unset("jobs-history")
	if _, ok := c.Get("jobs-history"); ok {
		t.Fatal("expected key to be removed")
	}
}

package conf

import "testing"

func TestSetDefaultsFillsPorts(t *testing.T) {
	var c Config
	c.setDefaults()
	if c.RUDPPort != 1026 {
		t.Fatalf("RUDPPort default = %d, want 1026", c.RUDPPort)
	}
	if c.ControlPort != 1025 {
		t.Fatalf("ControlPort default = %d, want 1025", c.ControlPort)
	}
	if c.HTTPPort != 80 {
		t.Fatalf("HTTPPort default = %d, want 80", c.HTTPPort)
	}
	if c.PollerType != "poll" {
		t.Fatalf("PollerType default = %q, want poll", c.PollerType)
	}
	if c.Log.Level != "info" {
		t.Fatalf("Log.Level default = %q, want info", c.Log.Level)
	}
	if c.Timing.RetryCount != 15 {
		t.Fatalf("Timing.RetryCount default = %d, want 15", c.Timing.RetryCount)
	}
}

func TestValidateRejectsBadRandomDrop(t *testing.T) {
	c := Config{RandomDrop: 150}
	c.setDefaults()
	if err := c.validate(); err == nil {
		t.Fatal("expected validation error for random_drop=150")
	}
}

func TestValidateRejectsBadPollerType(t *testing.T) {
	c := Config{PollerType: "epoll"}
	c.setDefaults()
	// setDefaults only fills empty strings, so this survives to validate.
	c.PollerType = "epoll"
	if err := c.validate(); err == nil {
		t.Fatal("expected validation error for poller_type=epoll")
	}
}

func TestValidateRequiresSOCKS5ExitPeer(t *testing.T) {
	c := Config{SOCKS5: &SOCKS5Front{Port: 1080}}
	c.setDefaults()
	if err := c.validate(); err == nil {
		t.Fatal("expected validation error for socks5 without exit_peer")
	}
}

func TestLoadFromFileEmptyPathUsesDefaults(t *testing.T) {
	c, err := LoadFromFile("")
	if err != nil {
		t.Fatalf("LoadFromFile(\"\") error: %v", err)
	}
	if c.RUDPPort != 1026 {
		t.Fatalf("RUDPPort = %d, want 1026", c.RUDPPort)
	}
}

func TestApplyLiveCopiesOnlySafeFields(t *testing.T) {
	c := &Config{RandomDrop: 0}
	c.setDefaults()
	other := &Config{RandomDrop: 25, RUDPPort: 2000}
	other.Log.Level = "debug"
	other.setDefaults()
	c.ApplyLive(other)
	if c.RandomDrop != 25 {
		t.Fatalf("RandomDrop after ApplyLive = %d, want 25", c.RandomDrop)
	}
	if c.Log.Level != "debug" {
		t.Fatalf("Log.Level after ApplyLive = %q, want debug", c.Log.Level)
	}
	if c.RUDPPort != 1026 {
		t.Fatalf("RUDPPort after ApplyLive = %d, want 1026 (not a live-safe field)", c.RUDPPort)
	}
}

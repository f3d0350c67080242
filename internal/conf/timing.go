package conf

import (
	"fmt"
	"time"

	"rudprelay/internal/rudp"
)

// TimingConfig exposes spec.md §6's four RUDP timing knobs in
// milliseconds, so a deployment can tune them without touching code.
type TimingConfig struct {
	KeepAliveIntervalMS          int `yaml:"keep_alive_interval_ms"`
	RetryIntervalMS              int `yaml:"retry_interval_ms"`
	ConnectionApprovalIntervalMS int `yaml:"connection_approval_interval_ms"`
	RetryCount                   int `yaml:"retry_count"`
}

func (t *TimingConfig) setDefaults() {
	d := rudp.DefaultTiming()
	if t.KeepAliveIntervalMS == 0 {
		t.KeepAliveIntervalMS = int(d.KeepAliveInterval / time.Millisecond)
	}
	if t.RetryIntervalMS == 0 {
		t.RetryIntervalMS = int(d.RetryInterval / time.Millisecond)
	}
	if t.ConnectionApprovalIntervalMS == 0 {
		t.ConnectionApprovalIntervalMS = int(d.ConnectionApprovalInterval / time.Millisecond)
	}
	if t.RetryCount == 0 {
		t.RetryCount = d.RetryCount
	}
}

func (t *TimingConfig) validate() []error {
	var errs []error
	if t.KeepAliveIntervalMS <= 0 {
		errs = append(errs, fmt.Errorf("timing.keep_alive_interval_ms must be positive"))
	}
	if t.RetryIntervalMS <= 0 {
		errs = append(errs, fmt.Errorf("timing.retry_interval_ms must be positive"))
	}
	if t.ConnectionApprovalIntervalMS <= 0 {
		errs = append(errs, fmt.Errorf("timing.connection_approval_interval_ms must be positive"))
	}
	if t.RetryCount <= 0 {
		errs = append(errs, fmt.Errorf("timing.retry_count must be positive"))
	}
	return errs
}

// ToRUDP converts the millisecond-based config into a rudp.Timing.
func (t TimingConfig) ToRUDP() rudp.Timing {
	return rudp.Timing{
		KeepAliveInterval:          time.Duration(t.KeepAliveIntervalMS) * time.Millisecond,
		RetryInterval:              time.Duration(t.RetryIntervalMS) * time.Millisecond,
		ConnectionApprovalInterval: time.Duration(t.ConnectionApprovalIntervalMS) * time.Millisecond,
		RetryCount:                 t.RetryCount,
	}
}

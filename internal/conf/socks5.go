package conf

import "fmt"

// SOCKS5Front configures the optional local SOCKS5 ingress
// (internal/socks5front); nil disables it entirely.
type SOCKS5Front struct {
	Port     int    `yaml:"port"`
	ExitPeer string `yaml:"exit_peer"` // host:port of the relay this front dials through
}

func (s *SOCKS5Front) setDefaults() {
	if s.Port == 0 {
		s.Port = 1080
	}
}

func (s *SOCKS5Front) validate() []error {
	var errs []error
	if s.ExitPeer == "" {
		errs = append(errs, fmt.Errorf("socks5.exit_peer is required when socks5 is configured"))
	}
	return errs
}

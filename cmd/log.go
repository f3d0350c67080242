package main

import (
	"os"

	"rudprelay/internal/conf"
	"rudprelay/internal/flog"
)

// buildLogger constructs the process-wide flog.Logger from c.Log,
// writing to stdout (colored only if c.Log.Color is set) unless a file path
// is given; file output is never colored.
func buildLogger(c *conf.Config) (*flog.Logger, error) {
	level, err := flog.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}

	if c.Log.Path == "" || c.Log.Path == "-" {
		return flog.New(os.Stdout, level, c.Log.Color), nil
	}

	f, err := os.OpenFile(c.Log.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return flog.New(f, level, false), nil
}

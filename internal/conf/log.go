package conf

import "fmt"

// Log configures the package-level flog.Logger.
type Log struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
	Color bool   `yaml:"color"`
}

func (l *Log) setDefaults() {
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Path == "" {
		l.Path = "-" // stdout
	}
}

func (l *Log) validate() []error {
	var errs []error
	switch l.Level {
	case "debug", "info", "warn", "error", "critical", "none":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of debug/info/warn/error/critical/none, got %q", l.Level))
	}
	return errs
}

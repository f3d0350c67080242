package conf

import (
	"github.com/fsnotify/fsnotify"

	"rudprelay/internal/flog"
)

// Watch reloads path on every write event and applies the live-safe subset
// of the new config (log level, random-drop) onto c via ApplyLive. It runs
// until watcher.Close is called (cmd defers it until the Reactor returns),
// logging and ignoring any reload that fails to parse or validate —
// a bad edit must never crash a running relay.
func Watch(path string, c *Config) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				reloaded, err := LoadFromFile(path)
				if err != nil {
					flog.Warnf("conf: ignoring invalid reload of %s: %v", path, err)
					continue
				}
				c.ApplyLive(reloaded)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				flog.Warnf("conf: watch error: %v", err)
			}
		}
	}()
	return watcher, nil
}

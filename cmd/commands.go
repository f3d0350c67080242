package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rudprelay",
	Short: "A single-threaded reliable-UDP relay",
	Long: `rudprelay multiplexes many reliable, ordered byte streams over one
UDP socket (RUDP), bridging them to and from plain TCP connections on
either side, driven entirely by one cooperative Reactor event loop.`,
	RunE: runServe,
}

func init() {
	flags := rootCmd.Flags()
	flags.String("config", "", "YAML config file")
	flags.Int("rudp-port", 0, "RUDP protocol port (default 1026)")
	flags.Int("control-port", 0, "control socket port (default 1025)")
	flags.Int("http-port", 0, "HTTP protocol port (default 80)")
	flags.Int("random-drop", 0, "percent chance to drop an inbound RUDP datagram (testing)")
	flags.String("log", "", "log filename, '-' or empty for stdout")
	flags.String("log-level", "", "minimum log level: debug, info, warn, error, critical, none")
	flags.Bool("daemon", false, "detach and run as a daemon")
	flags.String("poller-type", "", "reactor backend: poll or select")
	flags.Bool("watch-config", false, "hot-reload log-level on config file changes (a changed random-drop is not applied to the running RUDP socket)")
	flags.String("socks5-listen", "", "host:port for an optional local SOCKS5 front-end, e.g. 127.0.0.1:1080; only the port is used and the front-end binds on all interfaces")
	flags.String("socks5-exit-peer", "", "exit relay (host:port) the SOCKS5 front-end dials through")
}

// Execute runs the root command; main only calls this.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

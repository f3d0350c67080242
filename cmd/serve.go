package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"rudprelay/internal/conf"
	"rudprelay/internal/control"
	"rudprelay/internal/daemon"
	"rudprelay/internal/databridge"
	"rudprelay/internal/flog"
	"rudprelay/internal/httpsrv"
	"rudprelay/internal/reactor"
	"rudprelay/internal/rudp"
	"rudprelay/internal/socks5front"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	c, err := conf.LoadFromFile(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyFlagOverrides(cmd, c)
	if err := c.Finalize(); err != nil {
		return err
	}

	if c.Daemon {
		if err := daemon.Daemonize(); err != nil {
			return fmt.Errorf("daemonizing: %w", err)
		}
	}

	log, err := buildLogger(c)
	if err != nil {
		return fmt.Errorf("configuring logging: %w", err)
	}
	flog.SetDefault(log)
	defer log.Close()

	re, err := reactor.New(c.PollerType, log)
	if err != nil {
		return fmt.Errorf("starting reactor: %w", err)
	}

	mgr, err := rudp.NewManager(re, fmt.Sprintf("0.0.0.0:%d", c.RUDPPort), c.Timing.ToRUDP(), c.RandomDrop, log)
	if err != nil {
		return fmt.Errorf("binding RUDP socket: %w", err)
	}
	if err := re.Register(mgr); err != nil {
		return err
	}
	databridge.WireAnswerer(re, mgr, log)

	if _, err := control.Listen(re, fmt.Sprintf("0.0.0.0:%d", c.ControlPort), mgr, log); err != nil {
		return fmt.Errorf("binding control socket: %w", err)
	}
	if _, err := httpsrv.Listen(re, fmt.Sprintf("0.0.0.0:%d", c.HTTPPort), mgr, log); err != nil {
		return fmt.Errorf("binding HTTP socket: %w", err)
	}

	var front *socks5front.Front
	if c.SOCKS5 != nil {
		exitPeer, err := net.ResolveUDPAddr("udp4", c.SOCKS5.ExitPeer)
		if err != nil {
			return fmt.Errorf("resolving socks5 exit_peer: %w", err)
		}
		front, err = socks5front.New(re, mgr, fmt.Sprintf("0.0.0.0:%d", c.SOCKS5.Port), exitPeer, log)
		if err != nil {
			return fmt.Errorf("starting socks5 front-end: %w", err)
		}
		go func() {
			if err := front.Serve(); err != nil {
				log.Errorf("socks5front: %v", err)
			}
		}()
	}

	if c.WatchConfig && cfgPath != "" {
		watcher, err := conf.Watch(cfgPath, c)
		if err != nil {
			log.Warnf("conf: --watch-config disabled, could not watch %s: %v", cfgPath, err)
		} else {
			defer watcher.Close()
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Infof("received %s, closing relay...", sig)
		re.InitClose()
	}()

	log.Infof("rudprelay listening: rudp=%d control=%d http=%d", c.RUDPPort, c.ControlPort, c.HTTPPort)
	err = re.Run()
	if front != nil {
		front.Close()
	}
	log.Infof("rudprelay terminated")
	return err
}

// applyFlagOverrides copies every explicitly-set flag onto c, letting
// file-based config stand where a flag was left at its zero value.
func applyFlagOverrides(cmd *cobra.Command, c *conf.Config) {
	f := cmd.Flags()
	if f.Changed("rudp-port") {
		c.RUDPPort, _ = f.GetInt("rudp-port")
	}
	if f.Changed("control-port") {
		c.ControlPort, _ = f.GetInt("control-port")
	}
	if f.Changed("http-port") {
		c.HTTPPort, _ = f.GetInt("http-port")
	}
	if f.Changed("random-drop") {
		c.RandomDrop, _ = f.GetInt("random-drop")
	}
	if f.Changed("log") {
		c.Log.Path, _ = f.GetString("log")
	}
	if f.Changed("log-level") {
		c.Log.Level, _ = f.GetString("log-level")
	}
	if f.Changed("daemon") {
		c.Daemon, _ = f.GetBool("daemon")
	}
	if f.Changed("poller-type") {
		c.PollerType, _ = f.GetString("poller-type")
	}
	if f.Changed("watch-config") {
		c.WatchConfig, _ = f.GetBool("watch-config")
	}
	if f.Changed("socks5-listen") || f.Changed("socks5-exit-peer") {
		if c.SOCKS5 == nil {
			c.SOCKS5 = &conf.SOCKS5Front{}
		}
		if f.Changed("socks5-listen") {
			listenAddr, _ := f.GetString("socks5-listen")
			if _, portStr, err := net.SplitHostPort(listenAddr); err == nil {
				fmt.Sscanf(portStr, "%d", &c.SOCKS5.Port)
			}
		}
		if f.Changed("socks5-exit-peer") {
			c.SOCKS5.ExitPeer, _ = f.GetString("socks5-exit-peer")
		}
	}
}

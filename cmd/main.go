// Command rudprelay is the relay's entry point: it parses flags, loads
// config, wires every package's Pollable into one Reactor, and runs it
// until SIGINT/SIGTERM, mirroring original_source/Server/__main__.py.
package main

func main() {
	Execute()
}

// Command sessionrotor keeps tracker and indexer session credentials fresh,
// rotating them through a VPN container on a jittered daily schedule.
package main

import "sessionrotor/internal/cli"

func main() {
	cli.Execute()
}

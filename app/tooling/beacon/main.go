// This program provides a command line client for querying a beacon node.
package main

import "github.com/pulsebeacon/pulse/app/tooling/beacon/cmd"

func main() {
	cmd.Execute()
}

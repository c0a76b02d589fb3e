// Command gantry is the task dependency and scheduling engine CLI.
package main

import "github.com/papapumpkin/gantry/cmd"

func main() {
	cmd.Execute()
}

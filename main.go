package main

import "github.com/sweeprl/sweeper/cmd"

func main() {
	cmd.Execute()
}

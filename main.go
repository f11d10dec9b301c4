package main

import "github.com/agentic-research/regionseed/cmd"

func main() {
	cmd.Execute()
}

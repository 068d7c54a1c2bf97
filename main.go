package main

import "github.com/agentic-research/scopetree/cmd"

func main() {
	cmd.Execute()
}

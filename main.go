package main

import "github.com/agentic-research/alchemy/cmd"

func main() {
	cmd.Execute()
}

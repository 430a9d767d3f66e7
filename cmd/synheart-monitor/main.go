package main

import "github.com/synheart/synheart-monitor/internal/cli"

func main() {
	cli.Execute()
}

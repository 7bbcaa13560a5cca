package main

import "wisefido-health-ingest/internal/cli"

func main() {
	cli.Execute()
}

package main

import "github.com/mossy-p/bridge-signaling/internal/cli"

func main() {
	cli.Execute()
}

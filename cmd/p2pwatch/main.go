package main

import "p2pwatch/internal/cli"

func main() {
	cli.Execute()
}

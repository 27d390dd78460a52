package main

import "coinalerts/internal/cli"

func main() {
	cli.Execute()
}

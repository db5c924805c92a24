package main

import (
	"coverwatcher/internal/cli"
)

func main() {
	cli.Execute()
}

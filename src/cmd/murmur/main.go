package main

import (
	"github.com/mosaicnetworks/murmur/src/cmd/murmur/command"
)

func main() {
	command.Execute()
}

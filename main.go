package main

import (
	"mixdown/cmd"
)

func main() {
	cmd.Execute()
}

package main

import (
	"distkit/cmd"
)

func main() {
	cmd.Execute()
}

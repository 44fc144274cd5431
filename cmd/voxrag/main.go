package main

import (
	"github.com/voxide/voxrag/cmd/voxrag/cmd"
)

func main() {
	cmd.Execute()
}

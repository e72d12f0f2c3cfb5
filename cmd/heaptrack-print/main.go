package main

import (
	"github.com/heaptrack-analyze/heaptrack-print/cmd/heaptrack-print/cmd"
)

func main() {
	cmd.Execute()
}

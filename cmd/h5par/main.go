// Command h5par drives parallel container writes from the command line.
//
// Subcommands:
//
//	checkpoint  write a simulated multi-rank checkpoint from a YAML job
//	ls          print the group and dataset tree of a container
//	hexdump     dump raw bytes of a container for debugging
package main

import (
	"os"
)

func main() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

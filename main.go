// The main package for the jobharvester executable.
package main

import (
	"os"

	"github.com/postly/job-harvester/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

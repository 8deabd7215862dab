// file: main.go
// version: 1.0.0
// guid: 2c4e6a8e-9d1f-4b3d-a5c7-0e2a4c6e8a0d

package main

import (
	"fmt"
	"os"

	"github.com/JeremiahM37/librarr/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

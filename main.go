// The main package for the quill executable.
package main

import (
	"github.com/wrenlabs/quill/cmd"
)

func main() {
	cmd.Execute()
}

// Command aiproto is a demonstration consumer of the aiproto library: it
// makes outbound calls and prints events to stdout. It is not a server.
package main

import (
	"fmt"
	"os"

	"github.com/aiproto/aiproto/cmd/aiproto/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "aiproto:", err)
		os.Exit(1)
	}
}

// Command brandlens runs the brand-monitoring alert server and its one-shot
// maintenance commands.
//
//	brandlens serve                 REST API plus background evaluation loop
//	brandlens evaluate <client>     run a client's alert rules once
//	brandlens sweep <client>        run the hallucination sweep once
//
// The config file is taken from --config or BRANDLENS_CONFIG. Without one the
// built-in defaults are used.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

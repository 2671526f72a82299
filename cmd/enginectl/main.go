// Command enginectl drives one EnvironmentEngineRequest end to end:
// build, mirror, and apply every service it names against a target
// cluster (spec.md §4.8). It is the thin process boundary around
// internal/deployment and internal/task; see SPEC_FULL.md §6 for the
// request/response contract and exit code meanings.
package main

import (
	"os"

	"github.com/deployforge/engine/internal/engineerr"
)

func main() {
	os.Exit(run())
}

func run() int {
	err := Execute()
	if err == nil {
		return 0
	}

	switch engineerr.KindOf(err) {
	case engineerr.KindCancelled:
		return 3
	case engineerr.KindInfrastructure:
		return 2
	case engineerr.KindUser:
		return 1
	default:
		return 1
	}
}

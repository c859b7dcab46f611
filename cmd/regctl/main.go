// Command regctl runs operator tasks against the registration database:
// schema migrations, one-shot payment expiry and outbox dispatch, price
// quotes and staging resets.
package main

import (
	"os"
)

// version is injected via ldflags at build time.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

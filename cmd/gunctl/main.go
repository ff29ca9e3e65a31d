// Command gunctl inspects captured protocol traffic offline: it deobfuscates
// headers, decrypts whole units, builds headers and login handshakes, and
// computes digests.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

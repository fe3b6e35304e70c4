// Netchain is an asynchronous TCP authorization server and client built
// on continuation-passing socket operations.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"netchain/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "netchain: %v\n", err)
		os.Exit(1)
	}
}

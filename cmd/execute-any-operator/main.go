package main

import (
	"fmt"
	"os"

	"github.com/alexisbeaulieu97/execute-any-operator/internal/tui"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, tui.Failure(err.Error()))
		os.Exit(1)
	}
}

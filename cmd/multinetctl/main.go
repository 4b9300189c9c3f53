// Command multinetctl checks upload files offline, without a server or
// database.
//
//	multinetctl formats
//	multinetctl validate --format csv --key id people.csv
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errRejected) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

//go:build !lambda

package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Fprintln(os.Stderr, "cscplanlambda runs only as an AWS Lambda function; rebuild with -tags lambda")
	os.Exit(1)
}

// Command fnctl validates function configurations locally and submits them
// to an fnhost server.
package main

import "os"

// Version information (set by build)
var Version = "dev"

func main() {
	os.Exit(Run(os.Args[1:], Dependencies{Out: os.Stdout}))
}

// ztpipectl -- CLI client for the ztpiped overlay transport adapter.
package main

import "github.com/ztpipe/ztpipe/cmd/ztpipectl/commands"

func main() {
	commands.Execute()
}

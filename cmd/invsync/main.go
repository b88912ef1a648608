// invsync CLI entry point
//
// invsync reconciles the local inventory collections with the remote
// system of record and pushes local changes upstream behind a checkpoint.
package main

import "github.com/jbctechsolutions/invsync/internal/presentation/cli/commands"

func main() {
	commands.Execute()
}

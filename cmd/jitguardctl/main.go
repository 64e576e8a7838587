// Command jitguardctl is a thin operator CLI over the entitlement and
// activation core: it never runs its own HTTP server, it just exercises the
// library's public surface against collaborators it is handed on the
// command line.
package main

import "github.com/terraconstructs/jitaccess/cmd/jitguardctl/cmd"

func main() {
	cmd.Execute()
}

// Package main provides the sheetlog CLI for reading and writing rows through
// an adapter endpoint.
package main

import "github.com/mscno/sheetlog/cmd/sheetlog/commands"

func main() {
	commands.Execute(Version)
}

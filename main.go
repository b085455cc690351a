package main

import (
	"github.com/NamanBalaji/fetchq/cmd"
)

var VERSION string = "<unknown>"

func main() {
	cmd.RootCmd.Version = VERSION
	cmd.Execute()
}

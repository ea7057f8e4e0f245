// Package main is the entry point for the luacover CLI.
package main

import "gooze.dev/pkg/luacover/cmd"

func main() {
	cmd.Execute()
}

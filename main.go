package main

import "github.com/schovi/termtools/cmd"

func main() {
	cmd.Execute()
}

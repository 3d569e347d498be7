package main

import "github.com/kozaktomas/person-matcher/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/pilab-dev/neoproxy/cmd/neoctl/cmd"

func main() {
	cmd.Execute()
}

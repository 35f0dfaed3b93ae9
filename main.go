package main

import "github.com/Daskott/sentinel/cmd"

func main() {
	cmd.Execute()
}

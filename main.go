package main

import "github.com/gaurav-prasanna/promptpipe/cmd"

func main() {
	cmd.Execute()
}

package main

import "linkrelay/cmd"

func main() {
	cmd.Execute()
}

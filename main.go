package main

import "klinevault/cmd"

func main() {
	cmd.Execute()
}

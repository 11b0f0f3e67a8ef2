package main

import "github.com/dexterhq/dexter/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/olegkizyma008-rgb/Atlas-sub002/cmd"

func main() {
	cmd.Execute()
}

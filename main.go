package main

import "github.com/BioHazard786/Huddle/cmd"

func main() {
	cmd.Execute()
}

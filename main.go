package main

import "github.com/indielab/kaish/cmd"

func main() {
	cmd.Execute()
}

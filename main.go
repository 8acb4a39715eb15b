package main

import "github.com/KaramelBytes/algamark-cli/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/KaramelBytes/lapboard-cli/cmd"

func main() {
	cmd.Execute()
}

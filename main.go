package main

import "github.com/KaramelBytes/nutrilens-cli/cmd"

func main() {
	cmd.Execute()
}

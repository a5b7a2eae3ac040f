package main

import "github.com/fathomlabs/stratus/internal/cmd"

func main() {
	cmd.Execute()
}

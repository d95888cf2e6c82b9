package main

import "github.com/deepscifi/guide/cmd"

func main() {
	cmd.Execute()
}

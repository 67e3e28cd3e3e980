package main

import "github.com/iksnae/uistream/cmd"

func main() {
	cmd.Execute()
}

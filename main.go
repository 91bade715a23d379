package main

import "github.com/pyramid-ing/tmgkfl/cmd"

func main() {
	cmd.Execute()
}

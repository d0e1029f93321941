package main

import "github.com/haven-project/haven/internal/cli"

func main() {
	cli.Execute()
}

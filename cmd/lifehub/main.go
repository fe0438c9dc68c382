package main

import "lifehub/internal/cli"

func main() {
	cli.Execute()
}

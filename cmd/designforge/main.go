package main

import "github.com/digkill/designforge/internal/cli"

func main() {
	cli.Execute()
}

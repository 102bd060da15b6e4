package main

import "github.com/SHAIKBILLAISMAIL/netsportsproject/internal/cli"

func main() {
	cli.Execute()
}

package main

import "github.com/dl-alexandre/gdrv-gateway/internal/cli"

func main() {
	cli.Execute()
}

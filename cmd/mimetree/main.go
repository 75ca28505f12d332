package main

import "github.com/mimetree/go-mimetree/internal/cli"

func main() {
	cli.Execute()
}

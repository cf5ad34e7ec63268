package main

import "book-features/internal/cli"

func main() {
	cli.Execute()
}

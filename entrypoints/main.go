package main

import (
	"github.com/Laisky/laisky-blog-web/cmd"
)

func main() {
	cmd.Execute()
}

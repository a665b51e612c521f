package main

import (
	"os"

	"github.com/classic-hero/classichero/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}

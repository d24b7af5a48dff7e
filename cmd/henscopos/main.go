// Command henscopos is the point-of-sale device CLI.
package main

import (
	"context"
	"os"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

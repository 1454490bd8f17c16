package main

import (
	"os"

	chatedgecmder "github.com/coriolislabs/chatedge/cmd/chatedge"
)

func main() {
	cmd := chatedgecmder.NewChatedgeCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"fmt"

	"github.com/tinkershack/drive-revenant/cmd"
)

func main() {
	rootCmd := cmd.NewRootCmd()

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
	}
}

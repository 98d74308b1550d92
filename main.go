package main

import (
	"log"

	"github.com/thiagokokada/git-dig/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		log.Fatalf("git-dig: %v", err)
	}
}

package main

import (
	"os"

	"github.com/Dicklesworthstone/designer_auth_bridge/cmd/designer-auth/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

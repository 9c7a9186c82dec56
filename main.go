package main

import (
	"github.com/originwatch/originwatch/internal/cmd"
)

func main() {
	cmd.Execute()
}

package main

import (
	_ "time/tzdata"

	"github.com/AzielCF/az-bulk/cmd"
)

func main() {
	cmd.Execute()
}

package main

import (
	"github.com/csfam/pawprint/internal/cli"
	"github.com/csfam/pawprint/internal/common/logtrace"
)

func init() {
	logtrace.InitLogger("info")
}

func main() {
	cli.Execute()
}

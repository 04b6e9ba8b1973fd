package main

import (
	"os"

	"github.com/ibeckermayer/livechat/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}

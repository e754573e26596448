package main

import (
	"github.com/avtools/ffmpeg-fetcher/cmd/ffmpeg-fetcher/cmd"
)

func main() {
	cmd.Execute()
}

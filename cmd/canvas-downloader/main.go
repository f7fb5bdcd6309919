package main

import "go-canvas-download/cmd/canvas-downloader/cmd"

func main() {
	cmd.Execute()
}

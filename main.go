package main

import "github.com/imgshrink/imgshrink/cmd"

func main() {
	cmd.Execute()
}

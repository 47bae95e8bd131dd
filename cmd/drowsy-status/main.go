package main

import "github.com/oshokin/drowsy-alarm/cmd/drowsy-status/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/oshokin/drowsy-alarm/cmd/drowsy-engine/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/oshokin/drowsy-alarm/cmd/drowsy-calibrate/cmd"

func main() {
	cmd.Execute()
}

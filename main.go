package main

import "github.com/kozaktomas/fingerprint-id/cmd"

func main() {
	cmd.Execute()
}

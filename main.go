package main

import "github.cicd.cloud.fpdev.io/BD/test-timings/cmd"

func main() {
	cmd.Execute()
}

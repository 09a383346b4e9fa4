package main

import "github.com/moonsidelab/lorabot/cmd"

func main() {
	cmd.Execute()
}

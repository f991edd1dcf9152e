package main

import "github.com/luffy-robotics/luffy/cmd/luffy-launcher/cmd"

func main() {
	cmd.Execute()
}

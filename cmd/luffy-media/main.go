package main

import "github.com/luffy-robotics/luffy/cmd/luffy-media/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/luffy-robotics/luffy/cmd/luffy-gateway/cmd"

func main() {
	cmd.Execute()
}

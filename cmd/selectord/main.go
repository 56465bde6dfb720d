package main

import "github.com/MrSnakeDoc/selectord/cmd/selectord/cmd"

func main() {
	cmd.Execute()
}

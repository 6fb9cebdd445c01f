package main

import "github.com/yourusername/billdesk/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/sstent/zwiftsync/cmd"

func main() {
	cmd.Execute()
}

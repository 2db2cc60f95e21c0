// Command idlecrew schedules idle-game crews from the terminal.
package main

import "github.com/marcus/idlecrew/cmd/idlecrew/commands"

func main() {
	commands.Execute()
}

// Command taskpilot runs development tasks through an AI coding agent,
// iterating until each task completes, fails, or needs a human.
package main

func main() {
	Execute()
}

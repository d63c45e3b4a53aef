package main

import "datacleanse/process/sanitize"

func main() {
	sanitize.Run()
}

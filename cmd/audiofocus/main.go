// Package main provides the CLI entrypoint for audiofocus.
package main

func main() {
	Execute()
}

// Command gitup updates many git repositories at once.
package main

import "github.com/jayteealao/gitup/cmd"

func main() {
	cmd.Execute()
}

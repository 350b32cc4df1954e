package main

import "github.com/andresmejia3/textmask/cmd"

func main() {
	cmd.Execute()
}

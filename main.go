package main

import "github.com/ValentinKolb/hotkv/cmd"

func main() {
	cmd.Execute()
}

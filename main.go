package main

import "github.com/ValentinKolb/dvkv/cmd"

func main() {
	cmd.Execute()
}

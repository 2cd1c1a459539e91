package main

import "github.com/lloydmeta/infodocs/app/cmd"

func main() {
	cmd.Execute()
}

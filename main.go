package main

import "github.com/andresmejia3/facecurator/cmd"

func main() {
	cmd.Execute()
}

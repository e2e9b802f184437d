package main

import "github.com/qrave1/PairCall/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/eleven-am/signstream/internal/bootstrap"

func main() {
	bootstrap.Run()
}

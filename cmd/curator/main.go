package main

import (
	"os"

	"horse.fit/curator/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}

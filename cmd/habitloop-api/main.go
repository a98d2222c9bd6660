package main

import (
	"github.com/joho/godotenv"
)

func main() {
	// Local development convenience; deployed environments inject real env
	// vars and have no .env file.
	_ = godotenv.Load()

	Execute()
}

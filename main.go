package main

import (
	"log"

	"github.com/joho/godotenv"

	"stock-council/internal/cli"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cli.Execute()
}

package main

import (
	"log"

	"kioskhelper/internal/app"
)

func main() {
	application, err := app.NewApp()
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	defer application.Close()

	if err := application.Run(); err != nil {
		log.Printf("Server stopped: %v", err)
	}
}

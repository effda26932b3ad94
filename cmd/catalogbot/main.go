package main

import (
	"log"

	"catalogbot/internal/app"
)

func main() {
	application, err := app.New()
	if err != nil {
		log.Fatalf("Failed to start catalog bot: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("Catalog bot stopped: %v", err)
	}
}

package main

import (
	"fmt"
	"log"

	"github.com/quickvisa/intake-backend/internal/utils"
)

func main() {
	fmt.Println("===========================================")
	fmt.Println("Session secret generator")
	fmt.Println("===========================================")
	fmt.Println()

	secret, err := utils.GenerateSessionSecret()
	if err != nil {
		log.Fatalf("Failed to generate secret: %v", err)
	}

	fmt.Println("Add this to your .env file or deployment secrets:")
	fmt.Println()
	fmt.Printf("JWT_SECRET=%s\n", secret)
	fmt.Println()
	fmt.Println("Rotating this secret signs every applicant out.")
	fmt.Println("===========================================")
}

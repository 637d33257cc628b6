// mktoken mints an HS256 bearer token for local development and testing.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func main() {
	secret := flag.String("secret", "", "JWT signing secret (or JWT_SECRET env)")
	userID := flag.String("user", "", "User UUID to put in the subject claim")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	if *secret == "" {
		*secret = os.Getenv("JWT_SECRET")
	}
	if *secret == "" || *userID == "" {
		fmt.Fprintln(os.Stderr, "Usage: mktoken -secret <jwt-secret> -user <user-uuid> [-ttl 24h]")
		os.Exit(1)
	}
	if _, err := uuid.Parse(*userID); err != nil {
		fmt.Fprintf(os.Stderr, "invalid user UUID: %v\n", err)
		os.Exit(1)
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": *userID,
		"iat": now.Unix(),
		"exp": now.Add(*ttl).Unix(),
	})

	signed, err := token.SignedString([]byte(*secret))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(signed)
}

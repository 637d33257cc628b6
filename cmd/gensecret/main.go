// gensecret prints a random secret suitable for JWT_SECRET.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

func main() {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	fmt.Println(base64.RawURLEncoding.EncodeToString(buf))
}

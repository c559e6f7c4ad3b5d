// Command sign-auth prints a bearer token for the gateway's private routes.
//
//	sign-auth                 # fresh key
//	sign-auth -key 0xabc...   # existing key, or PRIVATE_KEY env
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/uhyunpark/hftgate/pkg/crypto"
)

func main() {
	keyHex := flag.String("key", os.Getenv("PRIVATE_KEY"), "hex private key (generated when empty)")
	verify := flag.Bool("verify", true, "verify the token locally before printing")
	flag.Parse()

	var (
		signer *crypto.Signer
		err    error
	)
	if *keyHex == "" {
		signer, err = crypto.GenerateKey()
		if err == nil {
			fmt.Fprintf(os.Stderr, "Private Key: %s (KEEP SECRET!)\n", signer.PrivateKeyHex())
		}
	} else {
		signer, err = crypto.FromPrivateKeyHex(*keyHex)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Address: %s\n", signer.Address().Hex())

	token, err := signer.AuthToken(time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error signing: %v\n", err)
		os.Exit(1)
	}

	if *verify {
		account, err := crypto.NewVerifier(time.Minute, nil).Verify(token)
		if err != nil || account != signer.Address().Hex() {
			fmt.Fprintf(os.Stderr, "Verification failed: account=%s err=%v\n", account, err)
			os.Exit(1)
		}
	}

	// stdout carries only the token so it can be captured: TOKEN=$(sign-auth)
	fmt.Println(token)
}

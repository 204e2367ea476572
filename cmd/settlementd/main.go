package main

import (
	"log"

	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/services/settlementd"
)

func main() {
	if err := settlementd.Main(); err != nil {
		log.Fatalf("settlementd: %v", err)
	}
}

package main

import (
	"log"
	"os"
)

func main() {
	srv, err := NewServer()
	if err != nil {
		log.Printf("startup failed: %v", err)
		os.Exit(1)
	}

	if err := srv.Run(); err != nil {
		srv.Logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

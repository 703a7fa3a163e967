package main

import (
	"errors"
	"io/fs"
	"log"

	cfg "eventgallery/src/configuration"
	server "eventgallery/src/server"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("load .env: %v", err)
	}
	config := cfg.ReadProperties()
	server.RunServer(config)
}

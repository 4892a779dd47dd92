package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"clip-compiler/internal"
	"clip-compiler/internal/ffmpeg"
	"clip-compiler/internal/logging"
)

// hwprobe runs the hardware-encoder probe once and prints the encoder
// profile a worker on this host would use.
func main() {
	_ = godotenv.Load(".env")

	log, err := logging.New("errors.log")
	if err != nil {
		panic(err)
	}
	defer log.Close()

	cfg := internal.Config{
		EncodeTimeout: 5 * time.Minute,
		ProbeTimeout:  30 * time.Second,
	}

	runner, err := ffmpeg.NewRunner(cfg, log)
	if err != nil {
		log.Errorf("ffmpeg: %v", err)
		os.Exit(1)
	}

	enc := runner.ResolveEncoder(context.Background(), 1080)
	if enc.Hardware {
		fmt.Printf("hardware encoding: usable\n")
	} else {
		fmt.Printf("hardware encoding: unavailable, software fallback\n")
	}
	fmt.Printf("encoder profile: %v\n", enc.Args())
}

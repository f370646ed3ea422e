package main

import (
	"log"
	"os"

	"github.com/pisuke/clearblade-iot-core-utils/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

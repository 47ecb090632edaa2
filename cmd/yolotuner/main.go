package main

import (
	"log"
	"os"

	"github.com/prernadh/yolo-model-tuner-runner/internal/tuner/cli"
)

func main() {
	if err := cli.Run(os.Args[1:], "yolotuner"); err != nil {
		log.Fatalf("%v", err)
	}
}

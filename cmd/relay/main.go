// Command relay bridges browser microphone audio to the OpenAI Realtime API.
//
// Usage:
//
//	relay serve [--config relay.yaml] [--port 8000]
//	relay probe --in question.wav [--out reply.wav]
//
// Configuration comes from flags, then environment variables, then the
// optional YAML file. OPENAI_API_KEY is required to serve.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

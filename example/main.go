package main

import (
	"context"
	"log"
	"os"
	"time"

	ldbridge "github.com/launchdarkly/flutter-client-bridge"
	"github.com/launchdarkly/flutter-client-bridge/channel"
)

// Talks to a running `ldbridge-server serve` the way the Flutter plugin would.
func main() {
	baseURL := os.Getenv("LDBRIDGE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080/" + channel.DefaultChannel
	}
	client := channel.NewClient(baseURL, channel.ClientOptions{})
	err := client.Listen(func(method string, arguments interface{}) {
		log.Printf("Pushed %s: %v", method, arguments)
	})
	if err != nil {
		log.Fatalf("Error subscribing to pushes: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = client.InvokeMethod(ctx, "start", map[string]interface{}{
		"config":  map[string]interface{}{"mobileKey": "mob-example"},
		"context": []interface{}{map[string]interface{}{"kind": "user", "key": "example-user"}},
	})
	if err != nil {
		log.Fatalf("Error starting the client: %v", err)
	}

	result, err := client.InvokeMethod(ctx, "allFlags", nil)
	if m, ok := result.(map[string]interface{}); ok && err == nil {
		flags, err := ldbridge.DecodeValueMap(m)
		if err != nil {
			log.Printf("Unexpected flags %v: %v", m, err)
		}
		for key, value := range flags {
			log.Printf("%s = %s", key, value.JSONString())
		}
	}

	result, err = client.InvokeMethod(ctx, "boolVariationDetail", map[string]interface{}{
		"flagKey":      "enable-dark-mode",
		"defaultValue": false,
	})
	if err != nil {
		log.Printf("Error evaluating enable-dark-mode: %v", err)
	} else if m, ok := result.(map[string]interface{}); ok {
		detail, err := ldbridge.EvaluationDetailFromBridge(m)
		if err != nil {
			log.Printf("Unexpected detail %v: %v", m, err)
		} else {
			log.Printf("enable-dark-mode: %s (%s)", detail.Value.JSONString(), detail.Reason)
		}
	}

	if _, err = client.InvokeMethod(ctx, "startFlagListening", "enable-dark-mode"); err != nil {
		log.Printf("Error listening: %v", err)
	}
	log.Printf("Edit the flag file to see pushes, exiting in 30 seconds")
	time.Sleep(30 * time.Second)

	_, _ = client.InvokeMethod(context.Background(), "close", nil)
}

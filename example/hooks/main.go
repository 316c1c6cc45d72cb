package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldreason"
	"github.com/open-feature/go-sdk/pkg/openfeature"

	ldbridge "github.com/launchdarkly/flutter-client-bridge"
	"github.com/launchdarkly/flutter-client-bridge/api"
	"github.com/launchdarkly/flutter-client-bridge/fileprovider"
)

type printInvoker struct{}

func (printInvoker) InvokeMethod(method string, arguments any) {
	fmt.Printf("Pushed %s: %v\n", method, arguments)
}

func invoke(plugin *ldbridge.Plugin, method string, arguments any) (any, error) {
	future := api.NewResultFuture()
	plugin.HandleMethodCall(api.MethodCall{Method: method, Arguments: arguments}, future)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	response, err := future.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return response.Result, response.Err()
}

func main() {
	path := os.Getenv("LDBRIDGE_FLAGS")
	if path == "" {
		log.Fatal("LDBRIDGE_FLAGS must name a flag file")
	}
	provider := fileprovider.NewProvider(path)
	if err := openfeature.SetProvider(provider); err != nil {
		log.Fatalf("Error setting the provider: %v", err)
	}
	defer provider.Shutdown()

	beforeHook := func(context *ldbridge.HookContext) error {
		fmt.Printf("Before hook: %s evaluating '%s' for '%s' (default %s)\n",
			context.Method, context.Key, context.Context.Key(), context.DefaultValue.JSONString())
		return nil
	}
	afterHook := func(context *ldbridge.HookContext, detail *ldreason.EvaluationDetail) error {
		fmt.Printf("After hook: '%s' evaluated to %s (%s)\n", context.Key, detail.Value.JSONString(), detail.Reason)
		return nil
	}
	onFinallyHook := func(context *ldbridge.HookContext, detail *ldreason.EvaluationDetail) error {
		fmt.Printf("OnFinally hook: Completed evaluation of '%s'\n", context.Key)
		return nil
	}
	errorHook := func(context *ldbridge.HookContext, evalError error) error {
		fmt.Printf("Error hook: Error occurred during evaluation of '%s': %v\n", context.Key, evalError)
		return nil
	}

	plugin, err := ldbridge.NewPlugin(
		ldbridge.NewOpenFeatureStarter(openfeature.NewClient("hooks-example"), ldbridge.OpenFeatureOptions{Provider: provider}),
		printInvoker{},
		&ldbridge.Options{EvalHooks: []*ldbridge.EvalHook{ldbridge.NewEvalHook(beforeHook, afterHook, onFinallyHook, errorHook)}},
	)
	if err != nil {
		log.Fatalf("Error creating the plugin: %v", err)
	}
	defer plugin.Close()

	_, err = invoke(plugin, "start", map[string]any{
		"config":  map[string]any{"mobileKey": "mob-example"},
		"context": []any{map[string]any{"kind": "user", "key": "test"}},
	})
	if err != nil {
		log.Fatalf("Error starting: %v", err)
	}

	fmt.Println("=== Testing Variation with Hooks ===")
	value, err := invoke(plugin, "boolVariation", map[string]any{"flagKey": "enable-dark-mode", "defaultValue": false})
	if err != nil {
		log.Printf("Error evaluating: %v", err)
	} else {
		fmt.Printf("Final result: %v\n", value)
	}

	fmt.Println("\n=== Testing with Non-existent Flag ===")
	detail, err := invoke(plugin, "stringVariationDetail", map[string]any{"flagKey": "does-not-exist", "defaultValue": "DEFAULT"})
	if err != nil {
		log.Printf("Error evaluating: %v", err)
	} else {
		fmt.Printf("Missing flag result: %v\n", detail)
	}
}

// Package llm is the model-provider side of the agent: request and response
// types, a Client that routes requests to a registered ProviderAdapter, and
// an adapter backed by gollm (github.com/teilomillet/gollm).
//
// Calls are single, blocking request/response exchanges. There is no
// streaming and no retry; callers decide what a failure means.
//
//	adapter, _ := llm.NewGollmAdapter("openai", os.Getenv("OPENAI_API_KEY"),
//	    llm.WithModel("gpt-4o-mini"))
//	client := llm.NewClient(
//	    llm.WithProvider("openai", adapter),
//	    llm.WithMiddleware(llm.LoggingMiddleware(slog.Default())),
//	)
//
//	resp, err := client.Complete(ctx, llm.Request{
//	    Model:    "gpt-4o-mini",
//	    Messages: []llm.Message{llm.UserMessage("Hello")},
//	})
//
// A Response holds zero or more Candidates. Tool calls appear as
// ContentToolCall parts of a candidate's message; the gollm adapter
// recovers them from the generated text.
package llm

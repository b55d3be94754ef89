package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nulzo/prism-go/internal/analytics"
	"github.com/nulzo/prism-go/internal/cli"
	"github.com/nulzo/prism-go/internal/store/sqlite"
	"github.com/nulzo/prism-go/pkg/api"
	"github.com/nulzo/prism-go/pkg/processing"
	"github.com/nulzo/prism-go/pkg/prism"
	"github.com/nulzo/prism-go/pkg/stream"
	"go.uber.org/zap"
)

func (a *app) chat(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	var (
		model    = fs.String("model", "mock/echo", "Model to send the prompt to")
		streamed = fs.Bool("stream", false, "Print the answer as it arrives")
		system   = fs.String("system", "", "System prompt")
		thinking = fs.Bool("thinking", false, "Print the model's thinking, dimmed")
		asJSON   = fs.Bool("json", false, "Print the whole response as JSON")
		temp     = fs.Float64("temperature", -1, "Sampling temperature (unset when negative)")
		maxTok   = fs.Int("max-tokens", 0, "Completion token limit (0 = gateway default)")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	prompt := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if prompt == "" {
		data, err := io.ReadAll(bufio.NewReader(a.in))
		if err != nil {
			return fmt.Errorf("failed to read prompt: %w", err)
		}
		prompt = strings.TrimSpace(string(data))
	}

	req := &api.ChatRequest{Model: *model}
	if *temp >= 0 {
		req.Temperature = api.Float(*temp)
	}
	if *maxTok > 0 {
		req.MaxTokens = api.Int(*maxTok)
	}
	if *system != "" {
		req.Messages = append(req.Messages, api.NewMessage(api.System, *system))
	}
	if prompt != "" {
		req.Messages = append(req.Messages, api.NewMessage(api.User, prompt))
	}

	ledger, closeLedger, err := a.openLedger(ctx)
	if err != nil {
		return err
	}
	defer closeLedger()

	client := a.newClient()
	out := chatOutput{w: a.out, thinking: *thinking}

	call := analytics.Call{Model: *model, Streamed: *streamed}
	start := time.Now()

	var resp *api.ChatResponse
	switch {
	case *asJSON:
		req.Stream = *streamed
		resp, err = client.Chat(ctx, req)
	case *streamed:
		resp, call.TTFT, err = streamChat(ctx, client, req, &out)
		if err == nil {
			out.toolCalls(resp)
		}
	default:
		resp, err = client.Chat(ctx, req)
		if err == nil {
			out.buffered(resp)
			out.toolCalls(resp)
		}
	}

	call.Latency = time.Since(start)
	call.Response = resp
	call.Err = err
	if ledger != nil {
		ledger.Record(analytics.NewRecord(call))
	}

	if err != nil {
		return err
	}

	if *asJSON {
		fmt.Fprintln(a.out, cli.PrettyFormat(resp))
		return nil
	}
	out.footer(resp, call.Latency)
	return nil
}

// openLedger starts the usage ingestor when a ledger is configured. The
// returned func flushes and closes it.
func (a *app) openLedger(ctx context.Context) (analytics.Ingestor, func(), error) {
	if a.cfg.Usage.DSN == "" {
		return nil, func() {}, nil
	}

	repo, err := sqlite.NewSQLiteStorage(a.cfg.Usage.DSN, a.log)
	if err != nil {
		return nil, nil, err
	}

	ing := analytics.NewIngestor(a.log, repo)
	ing.Start(context.WithoutCancel(ctx))

	return ing, func() {
		ing.Stop()
		if err := repo.Close(); err != nil {
			a.log.Warn("failed to close usage ledger", zap.Error(err))
		}
	}, nil
}

// streamChat prints the answer as chunks arrive and returns the
// reconstructed response and the time to the first chunk.
func streamChat(ctx context.Context, client *prism.Client, req *api.ChatRequest, out *chatOutput) (*api.ChatResponse, time.Duration, error) {
	start := time.Now()
	s, err := client.ChatStream(ctx, req)
	if err != nil {
		return nil, 0, err
	}
	defer s.Close()

	var (
		acc    stream.Accumulator
		parser = processing.NewStreamParser()
		ttft   time.Duration
	)

	for chunk, err := range s.Chunks() {
		if err != nil {
			out.newline()
			return nil, ttft, err
		}
		if ttft == 0 {
			ttft = time.Since(start)
		}
		acc.Add(chunk)

		for _, choice := range chunk.Choices {
			if choice.Index != 0 || choice.Delta.Content == nil {
				continue
			}
			out.delta(parser.Process(*choice.Delta.Content))
		}
	}
	out.delta(parser.Flush())
	out.newline()

	resp, err := acc.Response()
	if err != nil {
		if errors.Is(err, stream.ErrNoChunks) {
			return nil, ttft, fmt.Errorf("gateway sent no chunks: %w", err)
		}
		return nil, ttft, err
	}
	resp.RequestID = s.RequestID()
	return resp, ttft, nil
}

type chatOutput struct {
	w        io.Writer
	thinking bool
	// midLine is set while the cursor is not at the start of a line
	midLine bool
}

func (o *chatOutput) delta(content, reasoning string) {
	if reasoning != "" && o.thinking {
		fmt.Fprint(o.w, cli.Dim(reasoning))
		o.midLine = !strings.HasSuffix(reasoning, "\n")
	}
	if content != "" {
		fmt.Fprint(o.w, content)
		o.midLine = !strings.HasSuffix(content, "\n")
	}
}

func (o *chatOutput) newline() {
	if o.midLine {
		fmt.Fprintln(o.w)
		o.midLine = false
	}
}

func (o *chatOutput) buffered(resp *api.ChatResponse) {
	choice := resp.FirstChoice()
	if choice == nil {
		return
	}

	parts := processing.ExtractThinking(choice.Message.Text())
	if o.thinking && parts.Thinking != nil {
		fmt.Fprintln(o.w, cli.Dim(*parts.Thinking))
		fmt.Fprintln(o.w)
	}
	if parts.Response != "" {
		fmt.Fprintln(o.w, parts.Response)
	}
}

func (o *chatOutput) toolCalls(resp *api.ChatResponse) {
	choice := resp.FirstChoice()
	if choice == nil {
		return
	}
	for _, call := range choice.Message.ToolCalls {
		fmt.Fprintf(o.w, "%s %s(%s)\n", cli.Arrow(), cli.Bold(call.Function.Name), call.Function.Arguments)
	}
}

func (o *chatOutput) footer(resp *api.ChatResponse, latency time.Duration) {
	parts := []string{resp.Model, latency.Round(time.Millisecond).String()}
	if u := resp.Usage; u != nil {
		parts = append(parts, fmt.Sprintf("%d in / %d out tokens", u.PromptTokens, u.CompletionTokens))
		if u.CompletionTokensDetails != nil && u.CompletionTokensDetails.ReasoningTokens != nil {
			parts = append(parts, fmt.Sprintf("%d reasoning", *u.CompletionTokensDetails.ReasoningTokens))
		}
	}
	if choice := resp.FirstChoice(); choice != nil && choice.FinishReason != nil {
		parts = append(parts, *choice.FinishReason)
	}
	if resp.RequestID != "" {
		parts = append(parts, resp.RequestID)
	}
	fmt.Fprintln(o.w, cli.Dim(strings.Join(parts, " · ")))
}

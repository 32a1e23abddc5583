package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/careerflow/api"
	"github.com/BaSui01/careerflow/config"
)

// =============================================================================
// 💬 chat 命令
// =============================================================================

func runChat(args []string) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	session := fs.String("session", "", "Session id (generated by the server when empty)")
	apiKey := fs.String("api-key", "", "API key")
	token := fs.String("token", "", "Bearer token")
	debug := fs.Bool("debug", false, "Log client diagnostics to stderr")
	fs.Parse(args)

	logger := zap.NewNop()
	if *debug {
		logger = initLogger(config.LogConfig{Level: "debug", Format: "console", OutputPaths: []string{"stderr"}})
	}

	opts := []api.ClientOption{api.WithClientLogger(logger)}
	if *apiKey != "" {
		opts = append(opts, api.WithAPIKey(*apiKey))
	}
	if *token != "" {
		opts = append(opts, api.WithHeader("Authorization", "Bearer "+*token))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := api.Dial(ctx, *addr, *session, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	if err := chatLoop(ctx, client, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Chat failed: %v\n", err)
		os.Exit(1)
	}
}

// chatSession 是 chatLoop 需要的客户端能力
type chatSession interface {
	Send(ctx context.Context, content string) error
	Receive(ctx context.Context) (api.Event, error)
	Close() error
}

// chatLoop 把 in 的每一行作为用户消息发送，并把服务端事件渲染到 out。
// 服务端正常关闭时返回 nil。
func chatLoop(ctx context.Context, client chatSession, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// 接收结束即整个会话结束，发送方随之退出
		defer cancel()
		defer client.Close()
		for {
			ev, err := client.Receive(gctx)
			if err != nil {
				var closed *api.ClosedError
				if errors.As(err, &closed) {
					fmt.Fprintf(out, "Session closed (%d): %s\n", closed.Code, closed.Reason)
					if closed.Normal() {
						return nil
					}
					return closed
				}
				if gctx.Err() != nil {
					return nil
				}
				return err
			}
			fmt.Fprintln(out, renderEvent(ev))
			if api.IsWaiting(ev) {
				fmt.Fprint(out, "> ")
			}
		}
	})

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-gctx.Done():
				return
			}
		}
	}()

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					// 输入结束，等待服务端收尾
					<-gctx.Done()
					return nil
				}
				if err := client.Send(gctx, line); err != nil {
					if gctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("send: %w", err)
				}
			}
		}
	})

	return g.Wait()
}

// renderEvent 把事件格式化为一行终端输出
func renderEvent(ev api.Event) string {
	switch ev.Type {
	case api.EventSystem:
		return "* " + ev.Content
	case api.EventTool:
		tool := "tool"
		if ev.Tool != nil {
			tool = *ev.Tool
		}
		return fmt.Sprintf("[%s] 🔧 %s: %s", ev.Agent, tool, ev.Content)
	case api.EventHandoff:
		return fmt.Sprintf("[%s] → %s", ev.Agent, strings.TrimSpace(ev.Content))
	default:
		return fmt.Sprintf("[%s] %s", ev.Agent, ev.Content)
	}
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fabfab/papermind/api"
	"github.com/fabfab/papermind/archive"
	"github.com/fabfab/papermind/config"
	"github.com/fabfab/papermind/extract"
	"github.com/fabfab/papermind/llm"
	"github.com/fabfab/papermind/rag"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load configuration: %v", err)
	}

	switch os.Args[1] {
	case "serve":
		serveCmd(cfg, logger, os.Args[2:])
	case "analyze":
		analyzeCmd(cfg, logger, os.Args[2:])
	case "ask":
		askCmd(cfg, logger, os.Args[2:])
	case "status":
		statusCmd(cfg, logger, os.Args[2:])
	default:
		logger.Printf("unknown command: %s", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func serveCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := flags.String("addr", net.JoinHostPort(cfg.Server.Host, cfg.Server.Port), "listen address")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse serve flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	archiveClient := archive.NewClient(cfg, logger)
	provider, err := llm.NewProvider(cfg, archiveClient, logger)
	if err != nil {
		logger.Fatalf("ai provider setup: %v", err)
	}

	retrieval := rag.NewClient(cfg, logger)
	orchestrator := rag.NewOrchestrator(retrieval, archiveClient, archive.NewTagCache(archiveClient), archive.NewCorrespondentCache(archiveClient), provider, logger, cfg.RAG.MaxSources)

	server := &http.Server{
		Addr:    *addr,
		Handler: api.New(cfg, provider, orchestrator, retrieval, logger),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("server shutdown: %v", err)
		}
	}()

	logger.Printf("listening on %s using %s provider", *addr, cfg.AI.Provider)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server failed: %v", err)
	}
}

func analyzeCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("analyze", flag.ExitOnError)
	file := flags.String("file", "", "path to a local document (pdf, txt, md); reads stdin when omitted")
	documentID := flags.Int("id", 0, "archive document id, used for thumbnail caching")
	customPrompt := flags.String("prompt", "", "custom analysis prompt replacing the generated one")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse analyze flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	content, err := readContent(*file)
	if err != nil {
		logger.Fatalf("read document: %v", err)
	}

	archiveClient := archive.NewClient(cfg, logger)
	provider, err := llm.NewProvider(cfg, archiveClient, logger)
	if err != nil {
		logger.Fatalf("ai provider setup: %v", err)
	}

	result := provider.AnalyzeDocument(ctx, llm.Request{
		Content:      content,
		DocumentID:   *documentID,
		CustomPrompt: *customPrompt,
	})

	printJSON(logger, result)
	if result.Error != "" {
		os.Exit(1)
	}
}

func askCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ask", flag.ExitOnError)
	question := flags.String("question", "", "question to ask about the document corpus")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse ask flags: %v", err)
	}

	if strings.TrimSpace(*question) == "" {
		logger.Fatal("a question is required (use -question)")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	archiveClient := archive.NewClient(cfg, logger)
	provider, err := llm.NewProvider(cfg, archiveClient, logger)
	if err != nil {
		logger.Fatalf("ai provider setup: %v", err)
	}

	orchestrator := rag.NewOrchestrator(rag.NewClient(cfg, logger), archiveClient, archive.NewTagCache(archiveClient), archive.NewCorrespondentCache(archiveClient), provider, logger, cfg.RAG.MaxSources)

	answer, err := orchestrator.AskQuestion(ctx, *question)
	if err != nil {
		logger.Fatalf("ask failed: %v", err)
	}

	fmt.Println(answer.Answer)
	if len(answer.Sources) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for idx, source := range answer.Sources {
			fmt.Printf("%d. %s (doc %d)\n", idx+1, source.Title, source.DocumentID)
		}
	}
}

func statusCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("status", flag.ExitOnError)
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse status flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	archiveClient := archive.NewClient(cfg, logger)
	provider, err := llm.NewProvider(cfg, archiveClient, logger)
	if err != nil {
		logger.Fatalf("ai provider setup: %v", err)
	}

	printJSON(logger, map[string]any{
		"provider":  provider.CheckStatus(ctx),
		"retrieval": rag.NewClient(cfg, logger).Status(ctx),
	})
}

func readContent(file string) (string, error) {
	if file != "" {
		return extract.File(file)
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("no content on stdin")
	}
	return extract.Text(data)
}

func printJSON(logger *log.Logger, payload any) {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		logger.Fatalf("encode output: %v", err)
	}
	fmt.Println(string(encoded))
}

func printUsage() {
	fmt.Println("Usage: papermind <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  serve    Run the HTTP API")
	fmt.Println("  analyze  Analyze a local document (use --file, or pipe text to stdin)")
	fmt.Println("  ask      Ask a question about the document corpus")
	fmt.Println("  status   Show AI provider and retrieval service status")
}

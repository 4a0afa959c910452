package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	"github.com/expenso-ai/expenso/internal/chat"
	"github.com/expenso-ai/expenso/internal/llm"
	"github.com/expenso-ai/expenso/internal/storage"
)

var chatAddr string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start the conversational HTTP server",
	Long: `Start the HTTP server for the chat frontend.

The server exposes POST /chat: each request is one conversation turn
with optional attached images. Uploaded images are stored in
S3-compatible storage under a content hash and referenced in the
conversation by placeholder, so sessions stay small while every image
stays retrievable.

Requires an LLM configured (llm.enabled) to answer turns.

Example:
  expenso chat --addr :8080`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatAddr, "addr", ":8080", "listen address for the chat server")
	rootCmd.AddCommand(chatCmd)
}

// chatSystemPrompt shapes model answers so the response pipeline can
// separate reasoning from the user-visible reply and resolve image
// references back to stored bytes.
const chatSystemPrompt = `You are a personal expense assistant. Answer questions about the
user's receipts and spending.

Structure every answer as two sections:

# THINKING PROCESS
Your reasoning about the question.

# FINAL RESPONSE
The answer for the user.

Images in the conversation are referenced as [IMAGE-ID <hash>]. To show
the user a stored image, include its [IMAGE-ID <hash>] placeholder in
your final response.`

// llmResponder answers chat turns through the completion endpoint. The
// windowed history is flattened to text; image placeholders stand in
// for the raw bytes.
type llmResponder struct {
	llm *llm.Client
}

func (r *llmResponder) Respond(ctx context.Context, history []chat.Message) (string, error) {
	return r.llm.Complete(ctx, chatSystemPrompt, chat.RenderPrompt(history))
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	if !cfg.LLM.Enabled {
		return fmt.Errorf("chat requires an LLM: set llm.enabled and llm.socket_path")
	}

	llmClient, err := llm.New(llm.Config{
		SocketPath: cfg.LLM.SocketPath,
		Model:      cfg.LLM.Model,
	})
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}

	storageClient, err := storage.New(storage.Config{
		Endpoint:        cfg.Storage.Endpoint,
		Bucket:          cfg.Storage.Bucket,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		UseSSL:          cfg.Storage.UseSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to create storage client: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	if err := storageClient.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("failed to prepare image bucket: %w", err)
	}

	svc := chat.NewService(storageClient)
	handler := chat.NewHandler(svc, &llmResponder{llm: llmClient})

	app := fiber.New()
	handler.Register(app)

	fmt.Fprintf(cmd.ErrOrStderr(), "Starting chat server on %s...\n", chatAddr)

	return app.Listen(chatAddr)
}

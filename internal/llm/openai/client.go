package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"takeoff-backend/internal/extract"
	"takeoff-backend/internal/items"
	"takeoff-backend/internal/llm"
	"takeoff-backend/internal/shared/storage/object"
	"takeoff-backend/internal/shared/telemetry"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	providerName   = "openai"
	artifactPrefix = "artifacts"
)

// Options configures Client.
type Options struct {
	APIKey  string
	Model   string
	BaseURL string
	// Store holds document text between Upload and Extract.
	Store object.ObjectStore
	// Transport overrides the base HTTP transport; tests use it.
	Transport http.RoundTripper
}

// Client implements llm.Client using streamed OpenAI Chat Completions.
type Client struct {
	model      string
	baseURL    string
	store      object.ObjectStore
	httpClient *http.Client
}

// NewClient constructs a new OpenAI client.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Model) == "" {
		return nil, llm.Fatal("LLM_MODEL is required for OpenAI", nil)
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, &llm.Error{Class: llm.ClassFatal, Auth: true, Message: "OPENAI_API_KEY is required"}
	}
	if opts.Store == nil {
		return nil, llm.Fatal("object store is required", nil)
	}
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	// Streaming responses are bounded by the caller's context, not a client timeout.
	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: strings.TrimSpace(opts.APIKey)}),
			Base:   transport,
		},
	}
	return &Client{
		model:      strings.TrimSpace(opts.Model),
		baseURL:    base,
		store:      opts.Store,
		httpClient: httpClient,
	}, nil
}

// Upload extracts the document text and keeps it as an artifact for Extract.
func (c *Client) Upload(ctx context.Context, doc llm.Document) (llm.ArtifactRef, error) {
	text, err := extract.ExtractTextFromBytes(ctx, doc.Data, doc.MimeType, doc.FileName)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return llm.ArtifactRef{}, ctxErr
		}
		return llm.ArtifactRef{}, llm.Fatal("read document "+doc.FileName, err)
	}
	if strings.TrimSpace(text) == "" {
		return llm.ArtifactRef{}, llm.Fatal("document "+doc.FileName+" has no readable text", nil)
	}
	key := path.Join(artifactPrefix, doc.ProjectID, doc.FileID, uuid.NewString()+".txt")
	if _, err := c.store.SaveWithKey(ctx, key, "text/plain; charset=utf-8", strings.NewReader(text)); err != nil {
		return llm.ArtifactRef{}, llm.Retryable("store artifact", err)
	}
	return llm.ArtifactRef{ID: key, Provider: providerName}, nil
}

func (c *Client) Extract(ctx context.Context, req llm.ExtractRequest) (llm.Result, error) {
	prompt, ok := llm.ExtractPrompt(req.Kind, req.ScheduleCodes)
	if !ok {
		return llm.Result{}, llm.Fatal(fmt.Sprintf("no extractor for kind %q", req.Kind), nil)
	}
	text, err := c.loadArtifact(ctx, req.Artifact)
	if err != nil {
		return llm.Result{}, err
	}
	raw, err := c.complete(ctx, []chatMessage{
		{Role: "system", Content: prompt},
		{Role: "user", Content: text},
	})
	if err != nil {
		return llm.Result{}, err
	}
	parsed, err := llm.ParseItems(raw)
	if err != nil {
		return llm.Result{RawText: raw}, err
	}
	return llm.Result{Items: parsed, RawText: raw}, nil
}

func (c *Client) Compare(ctx context.Context, req llm.CompareRequest) (llm.Result, error) {
	boq, err := json.Marshal(compactItems(req.BOQ))
	if err != nil {
		return llm.Result{}, llm.Fatal("encode boq items", err)
	}
	detail, err := json.Marshal(compactItems(req.Detail))
	if err != nil {
		return llm.Result{}, llm.Fatal("encode detail items", err)
	}
	var user strings.Builder
	user.WriteString("BOQ_ITEMS:\n")
	user.Write(boq)
	user.WriteString("\n\nDETAIL:\n")
	user.Write(detail)

	raw, err := c.complete(ctx, []chatMessage{
		{Role: "system", Content: llm.ComparePrompt(req.Task)},
		{Role: "user", Content: user.String()},
	})
	if err != nil {
		return llm.Result{}, err
	}
	rows, err := llm.ParseRows(raw)
	if err != nil {
		return llm.Result{RawText: raw}, err
	}
	return llm.Result{Rows: rows, RawText: raw}, nil
}

// Delete removes the artifact. A fresh context keeps release working after the
// job context has been cancelled.
func (c *Client) Delete(ctx context.Context, ref llm.ArtifactRef) {
	if strings.TrimSpace(ref.ID) == "" {
		return
	}
	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := c.store.Delete(delCtx, ref.ID); err != nil {
		telemetry.Warn("llm.delete_failed", map[string]any{
			"provider": providerName,
			"artifact": ref.ID,
			"error":    err.Error(),
		})
	}
}

func (c *Client) loadArtifact(ctx context.Context, ref llm.ArtifactRef) (string, error) {
	rc, err := c.store.Open(ctx, ref.ID)
	if err != nil {
		if errors.Is(err, object.ErrNotFound) {
			return "", llm.Fatal("artifact "+ref.ID+" not found", err)
		}
		return "", llm.Retryable("open artifact", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", llm.Retryable("read artifact", err)
	}
	return string(data), nil
}

type compactItem struct {
	Position    int            `json:"position"`
	ItemCode    string         `json:"itemCode"`
	Kind        string         `json:"kind"`
	Description string         `json:"description"`
	Notes       string         `json:"notes,omitempty"`
	Thickness   *float64       `json:"thickness,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
}

func compactItems(list []items.Item) []compactItem {
	out := make([]compactItem, 0, len(list))
	for _, it := range list {
		out = append(out, compactItem{
			Position:    it.Position,
			ItemCode:    it.ItemCode,
			Kind:        string(it.FileKind),
			Description: it.Description,
			Notes:       it.Notes,
			Thickness:   it.ThicknessMM,
			Fields:      it.Fields,
		})
	}
	return out
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

func (c *Client) complete(ctx context.Context, messages []chatMessage) (string, error) {
	payload, err := json.Marshal(chatRequest{Model: c.model, Messages: messages, Stream: true})
	if err != nil {
		return "", llm.Fatal("encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", llm.Fatal("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Classify inspects the wrapped transport error.
		return "", fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", llm.StatusError(resp.StatusCode, providerMessage(body))
	}

	text, err := readStream(resp.Body)
	if err != nil {
		return "", err
	}
	telemetry.Info("llm.response", map[string]any{
		"provider":    providerName,
		"model":       c.model,
		"duration_ms": time.Since(started).Milliseconds(),
		"chars":       len(text),
	})
	return text, nil
}

func providerMessage(body []byte) string {
	var parsed struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "empty response body"
	}
	return msg
}

var _ llm.Client = (*Client)(nil)

package main

// Run one extraction prompt against a local file without the API:
//   go run ./cmd/prompttest -file boq.xlsx -kind boq
//   go run ./cmd/prompttest -file plan.pdf -kind drawing -codes D01,D02

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"takeoff-backend/internal/extract"
	"takeoff-backend/internal/files"
	"takeoff-backend/internal/llm"
	openai "takeoff-backend/internal/llm/openai"
	"takeoff-backend/internal/shared/config"
	localstore "takeoff-backend/internal/shared/storage/object/local"
)

func main() {
	cfg := config.Load()

	filePath := flag.String("file", "", "Path to a BOQ, schedule or drawing file (pdf, xlsx or csv)")
	kindFlag := flag.String("kind", "", "File kind: boq, schedule or drawing")
	codes := flag.String("codes", "", "Comma separated schedule codes for drawing extraction")
	textOnly := flag.Bool("text", false, "Print the extracted document text and stop")
	outPath := flag.String("out", "", "Path to write the JSON output (optional)")
	model := flag.String("model", cfg.LLMModel, "LLM model")
	flag.Parse()

	if strings.TrimSpace(*filePath) == "" {
		exitErr("file path is required")
	}
	kind, err := files.ParseKind(*kindFlag)
	if err != nil {
		exitErr(err.Error())
	}
	mimeType, err := mimeFromExt(*filePath)
	if err != nil {
		exitErr(err.Error())
	}
	data, err := os.ReadFile(*filePath)
	if err != nil {
		exitErr(fmt.Sprintf("read file: %v", err))
	}
	fileName := filepath.Base(*filePath)
	ctx := context.Background()

	if *textOnly {
		text, err := extract.ExtractTextFromBytes(ctx, data, mimeType, fileName)
		if err != nil {
			exitErr(fmt.Sprintf("extract text: %v", err))
		}
		fmt.Println(text)
		return
	}

	scratch, err := os.MkdirTemp("", "prompttest-")
	if err != nil {
		exitErr(fmt.Sprintf("temp dir: %v", err))
	}
	defer os.RemoveAll(scratch)

	client, err := openai.NewClient(openai.Options{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   *model,
		BaseURL: cfg.OpenAIBaseURL,
		Store:   localstore.New(scratch),
	})
	if err != nil {
		exitErr(err.Error())
	}

	ref, err := client.Upload(ctx, llm.Document{ProjectID: "prompttest", FileID: "local", FileName: fileName, MimeType: mimeType, Kind: kind, Data: data})
	if err != nil {
		exitErr(fmt.Sprintf("upload: %v", err))
	}
	defer client.Delete(ctx, ref)

	res, err := client.Extract(ctx, llm.ExtractRequest{Kind: kind, Artifact: ref, ScheduleCodes: splitCodes(*codes)})
	if err != nil {
		exitErr(fmt.Sprintf("llm extract: %v", err))
	}

	pretty, err := json.MarshalIndent(map[string]any{"kind": kind, "count": len(res.Items), "items": res.Items}, "", "  ")
	if err != nil {
		exitErr(fmt.Sprintf("format json: %v", err))
	}
	pretty = append(bytes.TrimRight(pretty, "\n"), '\n')

	if *outPath != "" {
		if err := os.WriteFile(*outPath, pretty, 0o644); err != nil {
			exitErr(fmt.Sprintf("write output: %v", err))
		}
	}
	if _, err := os.Stdout.Write(pretty); err != nil {
		exitErr(fmt.Sprintf("write stdout: %v", err))
	}
}

func splitCodes(raw string) []string {
	var out []string
	for _, c := range strings.Split(raw, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func mimeFromExt(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf", nil
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", nil
	case ".csv":
		return "text/csv", nil
	default:
		return "", fmt.Errorf("unsupported file type: %s", filepath.Ext(path))
	}
}

func exitErr(msg string) {
	_, _ = fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

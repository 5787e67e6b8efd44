package genai

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/openai/openai-go"
)

// debugEntry is one request/response pair written in debug mode.
type debugEntry struct {
	Timestamp time.Time                      `json:"timestamp"`
	Method    string                         `json:"method"`
	Model     string                         `json:"model"`
	Params    openai.ChatCompletionNewParams `json:"params"`
	Response  *openai.ChatCompletion         `json:"response,omitempty"`
	Error     string                         `json:"error,omitempty"`
}

// writeDebugLog stores the exchange under stateDir/debug when debug mode is on. Failures are only logged.
func (c *Client) writeDebugLog(method string, params openai.ChatCompletionNewParams, resp openai.ChatCompletion, callErr error) {
	if !c.debugMode || c.stateDir == "" {
		return
	}
	entry := debugEntry{Timestamp: time.Now(), Method: method, Model: c.model, Params: params}
	if callErr != nil {
		entry.Error = callErr.Error()
	} else {
		entry.Response = &resp
	}

	dir := filepath.Join(c.stateDir, "debug")
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Warn("GenAI debug: failed to create directory", "dir", dir, "error", err)
		return
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		slog.Warn("GenAI debug: failed to marshal entry", "error", err)
		return
	}
	name := fmt.Sprintf("%s_%s.json", entry.Timestamp.Format("20060102T150405.000000000"), method)
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		slog.Warn("GenAI debug: failed to write entry", "error", err)
	}
}

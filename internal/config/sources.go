package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Source is one place configuration can come from.
type Source interface {
	Name() string
	Load(ctx context.Context) (map[string]string, error)
}

// EndpointSource fetches the server's environment endpoint.
type EndpointSource struct {
	URL    string
	Client *http.Client
}

func (s EndpointSource) Name() string { return "endpoint" }

func (s EndpointSource) Load(ctx context.Context) (map[string]string, error) {
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", s.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", s.URL, resp.StatusCode)
	}

	var doc map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.URL, err)
	}
	return flatten(doc), nil
}

// DotEnvSource reads a local development file in .env syntax.
// The process environment is left untouched.
type DotEnvSource struct {
	Path string
}

func (s DotEnvSource) Name() string { return "dotenv" }

func (s DotEnvSource) Load(ctx context.Context) (map[string]string, error) {
	values, err := godotenv.Read(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.Path, err)
	}
	return values, nil
}

// JSONFileSource reads a static JSON object file.
type JSONFileSource struct {
	Path string
}

func (s JSONFileSource) Name() string { return "static" }

func (s JSONFileSource) Load(ctx context.Context) (map[string]string, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.Path, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.Path, err)
	}
	return flatten(doc), nil
}

// flatten keeps scalar values as strings; nested values are dropped.
func flatten(doc map[string]any) map[string]string {
	out := make(map[string]string, len(doc))
	for k, v := range doc {
		switch val := v.(type) {
		case string:
			out[k] = val
		case bool:
			out[k] = strconv.FormatBool(val)
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		}
	}
	return out
}

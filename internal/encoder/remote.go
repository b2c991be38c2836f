package encoder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/towow/negotiation/internal/negotiation/negerr"
	"github.com/towow/negotiation/pkg/vector"
)

// RemoteEncoder calls an HTTP embeddings endpoint instead of loading a model
// in-process, with a disk-backed cache keyed by the sha256 of the request
// text. Mirrors the reference implementation's HTTP embedding client: no ML
// runtime in the binary, same vectors as whatever model backs the endpoint.
type RemoteEncoder struct {
	url        string
	apiKey     string
	dim        int
	httpClient *http.Client
	cacheDir   string

	mu sync.Mutex
}

// RemoteEncoderConfig configures a RemoteEncoder.
type RemoteEncoderConfig struct {
	URL      string
	APIKey   string
	Dim      int
	CacheDir string // empty disables caching
	Timeout  time.Duration
}

// NewRemoteEncoder builds a RemoteEncoder from cfg.
func NewRemoteEncoder(cfg RemoteEncoderConfig) (*RemoteEncoder, error) {
	if cfg.URL == "" {
		return nil, negerr.NewConfigError("remote encoder requires a URL", nil)
	}
	if cfg.Dim <= 0 {
		return nil, negerr.NewConfigError("remote encoder requires a positive dimension", nil)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if cfg.CacheDir != "" {
		if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
			return nil, negerr.NewConfigError("cannot create embedding cache dir", err)
		}
	}
	return &RemoteEncoder{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		dim:        cfg.Dim,
		httpClient: &http.Client{Timeout: timeout},
		cacheDir:   cfg.CacheDir,
	}, nil
}

func (e *RemoteEncoder) Name() string   { return "remote-http" }
func (e *RemoteEncoder) Dimension() int { return e.dim }

type remoteRequest struct {
	Inputs []string `json:"inputs"`
}

func (e *RemoteEncoder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (e *RemoteEncoder) readCache(key string) (vector.Vector, bool) {
	if e.cacheDir == "" {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	data, err := os.ReadFile(filepath.Join(e.cacheDir, key+".json"))
	if err != nil {
		return nil, false
	}
	var v []float32
	if json.Unmarshal(data, &v) != nil {
		return nil, false
	}
	return vector.Vector(v), true
}

func (e *RemoteEncoder) writeCache(key string, v vector.Vector) {
	if e.cacheDir == "" {
		return
	}
	data, err := json.Marshal([]float32(v))
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = os.WriteFile(filepath.Join(e.cacheDir, key+".json"), data, 0o644)
}

func (e *RemoteEncoder) Encode(ctx context.Context, text string) (vector.Vector, error) {
	if err := checkNonEmpty(text); err != nil {
		return nil, err
	}
	key := e.cacheKey(text)
	if v, ok := e.readCache(key); ok {
		return v, nil
	}
	vecs, err := e.call(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	v := vecs[0]
	norm, err := vector.Normalize(v)
	if err != nil {
		return nil, wrapZeroNorm(err)
	}
	e.writeCache(key, norm)
	return norm, nil
}

func (e *RemoteEncoder) EncodeBatch(ctx context.Context, texts []string) ([]vector.Vector, error) {
	out := make([]vector.Vector, len(texts))
	var missing []string
	var missingIdx []int
	for i, t := range texts {
		if err := checkNonEmpty(t); err != nil {
			return nil, err
		}
		if v, ok := e.readCache(e.cacheKey(t)); ok {
			out[i] = v
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) > 0 {
		vecs, err := e.call(ctx, missing)
		if err != nil {
			return nil, err
		}
		for j, idx := range missingIdx {
			norm, err := vector.Normalize(vecs[j])
			if err != nil {
				return nil, wrapZeroNorm(err)
			}
			out[idx] = norm
			e.writeCache(e.cacheKey(texts[idx]), norm)
		}
	}
	return out, nil
}

func (e *RemoteEncoder) Bundle(_ context.Context, vectors []vector.Vector) (vector.Vector, error) {
	v, err := vector.Bundle(vectors)
	if err != nil {
		if err == vector.ErrEmptyBundle {
			return nil, err
		}
		return nil, wrapZeroNorm(err)
	}
	return v, nil
}

func (e *RemoteEncoder) call(ctx context.Context, texts []string) ([]vector.Vector, error) {
	body, err := json.Marshal(remoteRequest{Inputs: texts})
	if err != nil {
		return nil, negerr.NewEncodingError("failed to encode embedding request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, negerr.NewEncodingError("failed to build embedding request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, negerr.NewEncodingError("embedding request failed", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, negerr.NewEncodingError("failed to read embedding response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, negerr.NewEncodingError(
			fmt.Sprintf("embedding endpoint returned status %d: %s", resp.StatusCode, string(respBody)), nil)
	}
	var vecs [][]float32
	if err := json.Unmarshal(respBody, &vecs); err != nil {
		return nil, negerr.NewEncodingError("failed to parse embedding response", err)
	}
	if len(vecs) != len(texts) {
		return nil, negerr.NewEncodingError("embedding response size mismatch", nil)
	}
	out := make([]vector.Vector, len(vecs))
	for i, v := range vecs {
		out[i] = vector.Vector(v)
	}
	return out, nil
}

package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
)

const defaultHugotModel = "sentence-transformers/all-MiniLM-L6-v2"

// HugotEmbedder runs a sentence transformer locally through hugot's pure Go backend
type HugotEmbedder struct {
	name      string
	session   *hugot.Session
	pipeline  *pipelines.FeatureExtractionPipeline
	dimension int
	mu        sync.Mutex // pipeline runs are serialised
}

// NewHugotEmbedder prepares the model (downloading it if needed) and probes its dimension
func NewHugotEmbedder(modelName, modelDir string) (*HugotEmbedder, error) {
	if modelName == "" {
		modelName = defaultHugotModel
	}
	if modelDir == "" {
		modelDir = "./models"
	}

	modelPath, err := prepareModel(modelName, modelDir)
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "nyayasetu-embedder",
	}
	pipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create embedding pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create embedding pipeline: %w", err)
	}

	e := &HugotEmbedder{name: modelName, session: session, pipeline: pipeline}

	probe, err := pipeline.RunPipeline([]string{"dimension probe"})
	if err != nil || len(probe.Embeddings) == 0 {
		_ = e.Close()
		return nil, fmt.Errorf("failed to probe embedding dimension: %w", errors.Join(err, ErrEmbeddingFailed))
	}
	e.dimension = len(probe.Embeddings[0])
	return e, nil
}

func (e *HugotEmbedder) Model() string {
	return fmt.Sprintf("hugot/%s@%d", e.name, e.dimension)
}

func (e *HugotEmbedder) Dimension() int { return e.dimension }

func (e *HugotEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	result, err := e.pipeline.RunPipeline(texts)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrEmbeddingFailed, len(result.Embeddings), len(texts))
	}

	for i := range result.Embeddings {
		Normalize(result.Embeddings[i])
	}
	return result.Embeddings, nil
}

// Close releases the ONNX session
func (e *HugotEmbedder) Close() error {
	return e.session.Destroy()
}

// prepareModel downloads the model if it doesn't exist and returns the model path
func prepareModel(modelName, modelDir string) (string, error) {
	modelPath := filepath.Join(modelDir, strings.ReplaceAll(modelName, "/", "_"))
	if _, err := os.Stat(modelPath); err == nil {
		return modelPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to stat model directory: %w", err)
	}

	if err := os.MkdirAll(modelDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create model directory: %w", err)
	}
	downloadOptions := hugot.NewDownloadOptions()
	downloadOptions.OnnxFilePath = "onnx/model.onnx"
	downloadedPath, err := hugot.DownloadModel(modelName, modelDir, downloadOptions)
	if err != nil {
		return "", fmt.Errorf("failed to download model: %w", err)
	}
	return downloadedPath, nil
}

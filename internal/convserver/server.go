// Package convserver exposes checkpoint conversion as a small REST API.
// Jobs run asynchronously; clients poll for completion.
package convserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/RishanR/mediapipe-fydp/internal/logger"
	"github.com/RishanR/mediapipe-fydp/pkg/convert"
)

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ConvertRequest mirrors the convert command's flags.
type ConvertRequest struct {
	InputCkpt       string `json:"input_ckpt"`
	CkptFormat      string `json:"ckpt_format"`
	ModelType       string `json:"model_type"`
	Backend         string `json:"backend"`
	OutputDir       string `json:"output_dir"`
	Symmetric       *bool  `json:"is_symmetric,omitempty"`
	AttentionBits   int    `json:"attention_quant_bits,omitempty"`
	FeedforwardBits int    `json:"feedforward_quant_bits,omitempty"`
	EmbeddingBits   int    `json:"embedding_quant_bits,omitempty"`
	CombineFileOnly bool   `json:"combine_file_only,omitempty"`
	VocabModelFile  string `json:"vocab_model_file,omitempty"`
	OutputArtifact  string `json:"output_tflite_file,omitempty"`
}

// Job is the public record returned for conversion jobs.
type Job struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	Artifact   string     `json:"artifact,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Server tracks conversion jobs.
type Server struct {
	log logger.Logger

	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewServer(log logger.Logger) *Server {
	return &Server{
		log:  log,
		jobs: make(map[string]*Job),
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.POST("/v1/convert", s.handleConvert)
	e.GET("/v1/jobs/:id", s.handleGetJob)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleConvert(c *echo.Context) error {
	req, err := decodeJSON[ConvertRequest](c.Request().Body)
	if err != nil {
		return writeError(c, http.StatusBadRequest, "invalid request body")
	}

	cfg, err := convert.NewConfig(convert.Options{
		InputCkpt:       req.InputCkpt,
		CkptFormat:      req.CkptFormat,
		ModelType:       req.ModelType,
		Backend:         req.Backend,
		OutputDir:       req.OutputDir,
		Symmetric:       req.Symmetric,
		AttentionBits:   req.AttentionBits,
		FeedforwardBits: req.FeedforwardBits,
		EmbeddingBits:   req.EmbeddingBits,
		CombineFileOnly: req.CombineFileOnly,
		VocabModelFile:  req.VocabModelFile,
		OutputArtifact:  req.OutputArtifact,
	})
	if err != nil {
		return writeError(c, http.StatusBadRequest, err.Error())
	}

	job := &Job{
		ID:        "conv_" + uuid.NewString(),
		Status:    StatusRunning,
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	go s.run(job.ID, cfg)

	return c.JSON(http.StatusAccepted, job)
}

func (s *Server) run(id string, cfg *convert.Config) {
	log := s.log.With("job", id)
	ctx := logger.WithContext(context.Background(), log)

	err := convert.Convert(ctx, cfg)
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.jobs[id]
	if job == nil {
		return
	}
	job.FinishedAt = &now
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
		log.Error("conversion failed", "error", err)
		return
	}
	job.Status = StatusCompleted
	job.Artifact = cfg.OutputArtifact
	log.Info("conversion completed", "artifact", cfg.OutputArtifact)
}

func (s *Server) handleGetJob(c *echo.Context) error {
	id := c.Param("id")

	s.mu.RLock()
	job, ok := s.jobs[id]
	var snapshot Job
	if ok {
		snapshot = *job
	}
	s.mu.RUnlock()

	if !ok {
		return writeError(c, http.StatusNotFound, "no such job: "+id)
	}
	return c.JSON(http.StatusOK, snapshot)
}

func writeError(c *echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]any{
		"error": map[string]string{"message": msg},
	})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

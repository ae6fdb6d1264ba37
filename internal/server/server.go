package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/timini/ensemble/internal/config"
	"github.com/timini/ensemble/internal/driver"
	"github.com/timini/ensemble/internal/ensemble"
	"github.com/timini/ensemble/internal/llm"
	"github.com/timini/ensemble/internal/schema"
	"github.com/timini/ensemble/internal/store"
)

// EnsembleRunner is what the handlers need from the engine.
type EnsembleRunner interface {
	Run(ctx context.Context, req ensemble.Request) (*schema.EnsembleResult, []string, error)
}

// ResultStore is what the handlers need from the persistence layer.
type ResultStore interface {
	Save(ctx context.Context, res *schema.EnsembleResult) (string, error)
	Get(ctx context.Context, id string) (*schema.EnsembleResult, error)
	List(ctx context.Context, limit int) ([]store.RunSummary, error)
}

type Server struct {
	Engine EnsembleRunner
	Store  ResultStore // nil when running without persistence
}

func NewServer() *Server {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.toml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Printf("Could not load %s: %v. Using defaults with env overrides", cfgPath, err)
		cfg = config.Default()
	}
	applyEnvOverrides(cfg)

	registry := llm.NewRegistry(cfg.Providers)

	embedder, err := llm.NewEmbedder(context.Background(), cfg.Providers, cfg.Ensemble.EmbeddingModel)
	if err != nil {
		log.Printf("Warning: %v. Majority strategy will be unavailable", err)
	}

	engine := ensemble.New(registry, embedder, cfg.Ensemble)

	s := &Server{Engine: engine}

	if cfg.Memgraph.URI != "" {
		d, err := driver.NewMemgraphDriver(cfg.Memgraph.URI, cfg.Memgraph.User, cfg.Memgraph.Password)
		if err != nil {
			log.Fatalf("Failed to connect to Memgraph: %v", err)
		}
		st := store.New(d)
		if err := st.BuildIndices(context.Background()); err != nil {
			log.Printf("Warning: failed to build indices: %v", err)
		}
		s.Store = st
	} else {
		log.Println("MEMGRAPH_URI not set, running without persistence")
	}

	return s
}

func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Providers.OpenAI.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Providers.Anthropic.APIKey = v
	}
	if v := os.Getenv("GOOGLE_API_KEY"); v != "" {
		cfg.Providers.Google.APIKey = v
	}
	if v := os.Getenv("XAI_API_KEY"); v != "" {
		cfg.Providers.XAI.APIKey = v
	}
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		cfg.Providers.Ollama.BaseURL = v
	}
	if v := os.Getenv("SUMMARIZER_MODEL"); v != "" {
		cfg.Ensemble.SummarizerModel = v
	}
	if v := os.Getenv("DEFAULT_MODELS"); v != "" {
		cfg.Ensemble.DefaultModels = strings.Split(v, ",")
	}
	if v := os.Getenv("MEMGRAPH_URI"); v != "" {
		cfg.Memgraph.URI = v
	}
	if v := os.Getenv("MEMGRAPH_USER"); v != "" {
		cfg.Memgraph.User = v
	}
	if v := os.Getenv("MEMGRAPH_PASSWORD"); v != "" {
		cfg.Memgraph.Password = v
	}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.Default()

	r.GET("/health", s.Health)
	r.POST("/ensemble", s.RunEnsemble)
	r.POST("/results", s.IngestResult)
	r.GET("/results", s.ListResults)
	r.GET("/results/:id", s.GetResult)

	return r
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type RunEnsembleRequest struct {
	Prompt   string   `json:"prompt"`
	Models   []string `json:"models"`
	Strategy string   `json:"strategy"`
	TopN     int      `json:"topN"`
}

func (s *Server) RunEnsemble(c *gin.Context) {
	var req RunEnsembleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.Strategy == "" {
		req.Strategy = string(schema.TypeStandard)
	}

	res, warnings, err := s.Engine.Run(c.Request.Context(), ensemble.Request{
		Prompt:   req.Prompt,
		Models:   req.Models,
		Strategy: schema.ResultType(req.Strategy),
		TopN:     req.TopN,
	})
	if err != nil {
		if errors.Is(err, ensemble.ErrInvalidRequest) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Printf("Ensemble run failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var id string
	if s.Store != nil {
		id, err = s.Store.Save(c.Request.Context(), res)
		if err != nil {
			// The caller still gets the result; persistence is best effort here.
			log.Printf("Failed to persist run: %v", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"id": id, "result": res, "warnings": warnings})
}

// IngestResult validates and stores a result document produced elsewhere,
// e.g. by the eval pipeline. Unknown fields are preserved verbatim.
func (s *Server) IngestResult(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	parsed := schema.Parse(body)
	if !parsed.Success {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "issues": parsed.Issues})
		return
	}

	if s.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Persistence is not configured"})
		return
	}

	id, err := s.Store.Save(c.Request.Context(), parsed.Result)
	if err != nil {
		log.Printf("Failed to save result: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save result"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) GetResult(c *gin.Context) {
	if s.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Persistence is not configured"})
		return
	}

	res, err := s.Store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) ListResults(c *gin.Context) {
	if s.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Persistence is not configured"})
		return
	}

	limit := 20
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	summaries, err := s.Store.List(c.Request.Context(), limit)
	if err != nil {
		log.Printf("Failed to list runs: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list results"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": summaries})
}

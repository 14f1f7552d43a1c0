// Package server exposes the pipeline triggers and read endpoints over HTTP.
// Every route sits behind the shared-secret check; a bad secret is rejected
// before any processing starts.
package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"storyradar/internal/alert"
	"storyradar/internal/enrich"
	"storyradar/internal/ingest"
	"storyradar/internal/logger"
	"storyradar/internal/metrics"
	"storyradar/internal/model"
	"storyradar/internal/outcome"
	"storyradar/internal/storage"
)

// SecretHeader carries the shared trigger secret.
const SecretHeader = "X-Radar-Secret"

// Ingestor runs one ingestion batch.
type Ingestor interface {
	Run(ctx context.Context) (*ingest.Result, error)
}

// Enricher runs one AI enrichment batch.
type Enricher interface {
	Run(ctx context.Context) (*enrich.Summary, error)
}

// OutcomeEvaluator runs one outcome evaluation batch.
type OutcomeEvaluator interface {
	Run(ctx context.Context) (*outcome.Summary, error)
}

// AlertDispatcher runs one alert dispatch batch.
type AlertDispatcher interface {
	Run(ctx context.Context) (*alert.Summary, error)
}

// ExemplarService manages reference-article submissions.
type ExemplarService interface {
	Submit(ctx context.Context, url string) (*model.ArticleExemplar, error)
	Delete(ctx context.Context, id int64) error
}

// ReadStore serves the export, feedback, article and health endpoints.
type ReadStore interface {
	StoriesSince(ctx context.Context, since time.Time) ([]model.StoryCandidate, error)
	TopicProfiles(ctx context.Context) ([]model.TopicProfile, error)
	FeedbackSince(ctx context.Context, since time.Time) ([]model.StoryFeedback, error)
	InsertFeedback(ctx context.Context, fb *model.StoryFeedback) error
	InsertArticle(ctx context.Context, a model.Article) (int64, error)
	SystemAlerts(ctx context.Context) ([]model.SystemAlert, error)
}

// Deps bundles the collaborators the router needs.
type Deps struct {
	Secret    string
	Ingestor  Ingestor
	Enricher  Enricher
	Outcomes  OutcomeEvaluator
	Alerts    AlertDispatcher
	Exemplars ExemplarService
	Store     ReadStore
}

const exportWindow = 30 * 24 * time.Hour

// NewRouter builds the gin engine with all routes registered.
func NewRouter(deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(authMiddleware(deps.Secret))

	api := r.Group("/api")
	{
		pipeline := api.Group("/pipeline")
		pipeline.POST("/ingest", triggerHandler("ingest", func(c *gin.Context) (any, error) {
			return deps.Ingestor.Run(c.Request.Context())
		}))
		pipeline.POST("/enrich", triggerHandler("enrich", func(c *gin.Context) (any, error) {
			return deps.Enricher.Run(c.Request.Context())
		}))
		pipeline.POST("/outcomes", triggerHandler("outcomes", func(c *gin.Context) (any, error) {
			return deps.Outcomes.Run(c.Request.Context())
		}))
		pipeline.POST("/alerts", triggerHandler("alerts", func(c *gin.Context) (any, error) {
			return deps.Alerts.Run(c.Request.Context())
		}))

		api.POST("/exemplars", submitExemplarHandler(deps.Exemplars))
		api.DELETE("/exemplars/:id", deleteExemplarHandler(deps.Exemplars))
		api.POST("/feedback", feedbackHandler(deps.Store))
		api.POST("/articles", articleHandler(deps.Store))
		api.GET("/export/learning", exportHandler(deps.Store))
		api.GET("/health", healthHandler(deps.Store))
	}

	return r
}

func authMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// triggerHandler wraps a batch run with a correlation id and uniform error
// reporting.
func triggerHandler(name string, run func(c *gin.Context) (any, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		runID := uuid.NewString()
		logger.Info("trigger received", "job", name, "run_id", runID)

		payload, err := run(c)
		if err != nil {
			logger.Error("trigger failed", "job", name, "run_id", runID, "error", err)
			metrics.Global.SetError(err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "runId": runID})
			return
		}
		c.JSON(http.StatusOK, payload)
	}
}

type submitExemplarRequest struct {
	URL string `json:"url" binding:"required,url"`
}

func submitExemplarHandler(svc ExemplarService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req submitExemplarRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ex, err := svc.Submit(c.Request.Context(), req.URL)
		if err != nil {
			if err == storage.ErrDuplicate {
				c.JSON(http.StatusConflict, gin.H{"error": "exemplar already submitted"})
				return
			}
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, ex)
	}
}

func deleteExemplarHandler(svc ExemplarService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exemplar id"})
			return
		}
		if err := svc.Delete(c.Request.Context(), id); err != nil {
			if err == storage.ErrNotFound {
				c.JSON(http.StatusNotFound, gin.H{"error": "exemplar not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

type feedbackRequest struct {
	StoryID int64    `json:"storyId" binding:"required"`
	Rating  int      `json:"rating" binding:"required,min=1,max=5"`
	Tags    []string `json:"tags"`
	Action  string   `json:"action"`
}

func feedbackHandler(store ReadStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req feedbackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		fb := &model.StoryFeedback{
			StoryID: req.StoryID,
			Rating:  req.Rating,
			Tags:    req.Tags,
			Action:  req.Action,
		}
		if err := store.InsertFeedback(c.Request.Context(), fb); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, fb)
	}
}

type articleRequest struct {
	Headline       string     `json:"headline" binding:"required"`
	PublishedAt    *time.Time `json:"publishedAt"`
	TotalPageviews int64      `json:"totalPageviews"`
}

// articleHandler is the contract point for the external editorial system to
// record produced articles, which feed the outcome benchmark.
func articleHandler(store ReadStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req articleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		id, err := store.InsertArticle(c.Request.Context(), model.Article{
			Headline:       req.Headline,
			PublishedAt:    req.PublishedAt,
			TotalPageviews: req.TotalPageviews,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": id})
	}
}

func exportHandler(store ReadStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		since := time.Now().Add(-exportWindow)

		stories, err := store.StoriesSince(ctx, since)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		profiles, err := store.TopicProfiles(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		feedback, err := store.FeedbackSince(ctx, since)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"stories":       stories,
			"topicProfiles": profiles,
			"feedback":      feedback,
		})
	}
}

func healthHandler(store ReadStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		alerts, err := store.SystemAlerts(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		sourceHealth := make(map[string]any)
		healthy := true
		for _, a := range alerts {
			open := a.ResolvedAt == nil
			if open {
				healthy = false
			}
			sourceHealth[a.Type] = gin.H{
				"open":     open,
				"message":  a.Message,
				"raisedAt": a.RaisedAt,
			}
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"healthy": healthy,
			"alerts":  sourceHealth,
			"stats":   metrics.Global.GetStats(),
		})
	}
}

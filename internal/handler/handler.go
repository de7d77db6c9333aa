package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/fusionn-srt/internal/queue"
	"github.com/fusionn-srt/internal/service/processor"
	"github.com/fusionn-srt/internal/subtitle"
	"github.com/fusionn-srt/internal/version"
	"github.com/fusionn-srt/pkg/logger"
)

// multipartOverhead is allowed on top of the file ceiling for form framing.
const multipartOverhead = 1 << 20

// Handler handles HTTP requests.
type Handler struct {
	queue     *queue.Queue
	processor *processor.Service
	limiter   *rate.Limiter // nil = no upload limit
}

// New creates a new Handler. uploadRPM caps uploads per minute; 0 disables.
func New(q *queue.Queue, proc *processor.Service, uploadRPM int) *Handler {
	h := &Handler{
		queue:     q,
		processor: proc,
	}
	if uploadRPM > 0 {
		h.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(uploadRPM)), uploadRPM)
		logger.Infof("🚦 Upload rate limit: %d/min", uploadRPM)
	}
	return h
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/version", h.Version)

	r.POST("/upload", h.rateLimit(), h.Upload)
	r.GET("/status/:id", h.Status)
	r.GET("/download/:id", h.Download)

	// Job management
	r.GET("/jobs", h.ListJobs)
	r.GET("/jobs/stats", h.JobStats)
	r.DELETE("/jobs/:id", h.DeleteJob)
}

// rateLimit rejects uploads beyond the configured rate.
func (h *Handler) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.limiter != nil && !h.limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many uploads, try again later"})
			return
		}
		c.Next()
	}
}

// Health returns service health and adapter availability.
func (h *Handler) Health(c *gin.Context) {
	health := h.processor.Health()
	c.JSON(http.StatusOK, gin.H{
		"status":            "ok",
		"primary_adapter":   health.Primary,
		"primary_available": health.PrimaryAvailable,
		"adapters":          health.Adapters,
	})
}

// Version returns service version.
func (h *Handler) Version(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": version.Version})
}

// Upload accepts an audio file and queues a transcription job.
func (h *Handler) Upload(c *gin.Context) {
	maxBytes, exts := h.queue.Limits()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartOverhead)

	fh, err := c.FormFile("file")
	if err != nil {
		if isBodyTooLarge(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("file size exceeds %dMB limit", maxBytes/(1024*1024))})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file provided"})
		return
	}

	maxWords := 0
	if raw := strings.TrimSpace(c.PostForm("max_words")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max_words must be an integer"})
			return
		}
		maxWords = n
	}

	f, err := fh.Open()
	if err != nil {
		logger.Errorf("❌ Open upload: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read upload"})
		return
	}
	defer f.Close()

	job, err := h.queue.Submit(queue.Upload{
		FileName: fh.Filename,
		Size:     fh.Size,
		Body:     f,
	}, queue.SubmitOptions{MaxWords: maxWords})
	if err != nil {
		var verr *queue.ValidationError
		switch {
		case errors.As(err, &verr):
			logger.Warnf("⚠️ Upload rejected (%s): %v", fh.Filename, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Detail, "allowed_formats": exts})
		case errors.Is(err, queue.ErrShuttingDown):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			logger.Errorf("❌ Upload failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store upload"})
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":       job.ID,
		"status":       job.Status,
		"message":      "file uploaded, transcription queued",
		"file_size_mb": float64(job.FileSize) / 1024 / 1024,
		"max_words":    job.Options.MaxWords,
	})
}

// Status reports the current state of a job.
func (h *Handler) Status(c *gin.Context) {
	job, err := h.queue.Status(c.Param("id"))
	if err != nil {
		h.jobError(c, err)
		return
	}
	c.JSON(http.StatusOK, statusBody(job))
}

func statusBody(job queue.Job) gin.H {
	body := gin.H{
		"job_id":     job.ID,
		"status":     job.Status,
		"file_name":  job.FileName,
		"max_words":  job.Options.MaxWords,
		"created_at": job.CreatedAt,
		"updated_at": job.UpdatedAt,
	}
	if job.Error != "" {
		body["error"] = job.Error
	}
	if job.Status == queue.StatusCompleted {
		body["adapter"] = job.Adapter
		body["subtitle_count"] = job.CueCount
		if job.AudioDuration > 0 {
			body["duration"] = job.AudioDuration.Seconds()
		}
	}
	if job.StartedAt != nil && job.CompletedAt != nil {
		body["processing_seconds"] = job.CompletedAt.Sub(*job.StartedAt).Seconds()
	}
	return body
}

// Download streams the subtitle file of a completed job.
func (h *Handler) Download(c *gin.Context) {
	id := c.Param("id")
	f, job, err := h.queue.Result(id)
	if err != nil {
		h.jobError(c, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		logger.Errorf("❌ Stat result %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "result unavailable"})
		return
	}

	c.DataFromReader(http.StatusOK, info.Size(), subtitle.ContentType, f, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="subtitles_%s.srt"`, job.ID),
	})
}

// ListJobs returns every tracked job.
func (h *Handler) ListJobs(c *gin.Context) {
	jobs := h.queue.List()
	out := make([]gin.H, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, statusBody(job))
	}
	c.JSON(http.StatusOK, gin.H{"jobs": out, "count": len(out)})
}

// JobStats returns job counts per status.
func (h *Handler) JobStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.queue.Stats())
}

// DeleteJob removes a finished job and its files.
func (h *Handler) DeleteJob(c *gin.Context) {
	job, err := h.queue.Remove(c.Param("id"))
	if err != nil {
		h.jobError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "job deleted", "job_id": job.ID})
}

// jobError maps queue errors onto HTTP responses.
func (h *Handler) jobError(c *gin.Context, err error) {
	var failed *queue.JobFailedError
	switch {
	case errors.Is(err, queue.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	case errors.Is(err, queue.ErrNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": "transcription not finished yet"})
	case errors.Is(err, queue.ErrJobActive):
		c.JSON(http.StatusConflict, gin.H{"error": "job is still running"})
	case errors.As(err, &failed):
		c.JSON(http.StatusInternalServerError, gin.H{"error": failed.Message})
	default:
		logger.Errorf("❌ Request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func isBodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large")
}

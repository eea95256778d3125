package gateway

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/partnerlink/settlement-api/internal/pkg/response"
)

// Waker asks the background worker to run a job now.
type Waker func(ctx context.Context, job string)

type CronHandler struct {
	runner *Runner
	wake   Waker
}

func NewCronHandler(runner *Runner, wake Waker) *CronHandler {
	return &CronHandler{runner: runner, wake: wake}
}

func (h *CronHandler) run(job Job) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := h.runner.Run(r.Context(), job)
		if err != nil {
			log.Error().Err(err).Str("job", string(job)).Msg("Sweep aborted")
			if report == nil {
				response.FromError(w, err)
				return
			}
			response.JSON(w, http.StatusInternalServerError, report)
			return
		}
		response.OK(w, report)
	}
}

// Wake handles POST /api/admin/jobs/{job}/wake. The worker picks the job
// up asynchronously.
func (h *CronHandler) Wake(w http.ResponseWriter, r *http.Request) {
	job := Job(chi.URLParam(r, "job"))
	if !job.Valid() {
		response.BadRequest(w, "unknown job")
		return
	}
	if h.wake == nil {
		response.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "worker_unreachable"})
		return
	}
	h.wake(r.Context(), string(job))
	log.Info().Str("job", string(job)).Msg("Worker wake-up requested")
	response.Accepted(w, map[string]string{"job": string(job), "status": "queued"})
}

// AdminRoutes mounts the manual trigger for operators.
func (h *CronHandler) AdminRoutes(authMiddleware, adminMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(adminMiddleware)
	r.Post("/{job}/wake", h.Wake)
	return r
}

// Routes mounts POST /cron/{maturation,payouts,reconcile} behind auth.
func (h *CronHandler) Routes(cronAuth func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(cronAuth)
	r.Post("/maturation", h.run(JobMaturation))
	r.Post("/payouts", h.run(JobPayouts))
	r.Post("/reconcile", h.run(JobReconcile))
	return r
}

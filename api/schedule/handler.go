// Package schedule exposes the defense scheduler over HTTP.
package schedule

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sita/sidang/app"
	"github.com/sita/sidang/config"
	"github.com/sita/sidang/core/journal"
	"github.com/sita/sidang/core/model"
	"github.com/sita/sidang/infra/logger"
)

// Handler serves the scheduling routes on top of an app.Service.
type Handler struct {
	svc      *app.Service
	validate *validator.Validate
	log      logger.Logger
}

// New returns a Handler for svc.
func New(svc *app.Service, log logger.Logger) *Handler {
	if log == nil {
		log = logger.New("api")
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{svc: svc, validate: v, log: log}
}

// NewServer builds the fiber app with every route registered. Requests
// must carry "Authorization: Bearer <token>" when cfg.Token is set, except
// /health and /metrics.
func NewServer(cfg config.HTTPConfig, svc *app.Service, log logger.Logger) *fiber.App {
	h := New(svc, log)
	srv := fiber.New(fiber.Config{
		AppName:               "sidang",
		ReadTimeout:           time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		ErrorHandler:          h.handleError,
		DisableStartupMessage: true,
	})
	srv.Use(recover.New())
	srv.Use(bearer(cfg.Token))
	srv.Get("/health", func(c *fiber.Ctx) error { return ok(c, "ok", nil) })
	srv.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	h.Register(srv)
	return srv
}

func bearer(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" || c.Path() == "/health" || c.Path() == "/metrics" {
			return c.Next()
		}
		if c.Get(fiber.HeaderAuthorization) != "Bearer "+token {
			return fail(c, fiber.StatusUnauthorized, "unauthorized")
		}
		return c.Next()
	}
}

// Register mounts the scheduling routes on r.
func (h *Handler) Register(r fiber.Router) {
	r.Get("/candidates", h.candidates)
	r.Get("/forecast", h.forecast)
	r.Get("/runs", h.runs)
	r.Get("/options", h.options)

	s := r.Group("/schedule")
	s.Get("/", h.list)
	s.Get("/removed", h.removed)
	s.Delete("/", h.deleteAll)
	s.Post("/generate", h.generate)
	s.Get("/trigger", h.triggerStatus)
	s.Post("/trigger", h.scheduleTrigger)
	s.Delete("/trigger", h.cancelTrigger)
	s.Post("/swap", h.swap)
	s.Post("/move", h.move)
	s.Patch("/:id", h.edit)
	s.Delete("/:id", h.deleteOne)
}

// bind parses the JSON body into dst and validates it.
func (h *Handler) bind(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return badRequest("invalid body: %v", err)
	}
	return h.validate.Struct(dst)
}

func (h *Handler) candidates(c *fiber.Ctx) error {
	cands, err := h.svc.Candidates(c.UserContext())
	if err != nil {
		return err
	}
	if cands == nil {
		cands = []model.Candidate{}
	}
	return ok(c, "eligible candidates", cands)
}

func (h *Handler) list(c *fiber.Ctx) error {
	exams, err := h.svc.Schedule(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, "schedule", newScheduleList(exams))
}

func (h *Handler) removed(c *fiber.Ctx) error {
	exams, err := h.svc.Removed(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, "removed exams", newScheduleList(exams))
}

func newScheduleList(exams []model.ScheduledExam) scheduleList {
	if exams == nil {
		exams = []model.ScheduledExam{}
	}
	return scheduleList{Total: len(exams), Exams: exams}
}

func (h *Handler) generate(c *fiber.Ctx) error {
	res, err := h.svc.Generate(c.UserContext(), journal.SourceManual)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusCreated, "schedule generated", res)
}

func (h *Handler) triggerStatus(c *fiber.Ctx) error {
	t, err := h.svc.TriggerStatus(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, "trigger", t)
}

func (h *Handler) scheduleTrigger(c *fiber.Ctx) error {
	var req triggerRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	at, err := parseTime("run_at", req.RunAt)
	if err != nil {
		return err
	}
	t, err := h.svc.ScheduleTrigger(c.UserContext(), at)
	if err != nil {
		return err
	}
	return ok(c, "trigger scheduled", t)
}

func (h *Handler) cancelTrigger(c *fiber.Ctx) error {
	t, err := h.svc.CancelTrigger(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, "trigger canceled", t)
}

func (h *Handler) edit(c *fiber.Ctx) error {
	var req patchRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	patch, err := req.toPatch()
	if err != nil {
		return err
	}
	exam, err := h.svc.Edit(c.UserContext(), c.Params("id"), patch)
	if err != nil {
		return err
	}
	return ok(c, "exam updated", exam)
}

func (h *Handler) swap(c *fiber.Ctx) error {
	var req swapRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	exams, err := h.svc.Swap(c.UserContext(), req.ExamA, req.ExamB)
	if err != nil {
		return err
	}
	return ok(c, "exams swapped", exams)
}

func (h *Handler) move(c *fiber.Ctx) error {
	var req moveRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	from, err := model.ParseDate(req.FromDate)
	if err != nil {
		return badRequest("from_date: %v", err)
	}
	to, err := model.ParseDate(req.ToDate)
	if err != nil {
		return badRequest("to_date: %v", err)
	}
	exams, err := h.svc.MoveAll(c.UserContext(), from, to)
	if err != nil {
		return err
	}
	return ok(c, "schedule moved", newScheduleList(exams))
}

func (h *Handler) deleteOne(c *fiber.Ctx) error {
	req := deleteRequest{Reason: c.Query("reason")}
	if len(c.Body()) > 0 {
		if err := h.bind(c, &req); err != nil {
			return err
		}
	}
	if err := h.svc.Delete(c.UserContext(), c.Params("id"), req.Reason); err != nil {
		return err
	}
	return ok(c, "exam removed", fiber.Map{"id": c.Params("id")})
}

func (h *Handler) deleteAll(c *fiber.Ctx) error {
	res, err := h.svc.DeleteAll(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, "schedule cleared", res)
}

func (h *Handler) forecast(c *fiber.Ctx) error {
	f, err := h.svc.Forecast(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, "forecast", f)
}

func (h *Handler) options(c *fiber.Ctx) error {
	opts, err := h.svc.Options(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, "edit options", opts)
}

func (h *Handler) runs(c *fiber.Ctx) error {
	q := journal.RunQuery{}
	if s := c.Query("start"); s != "" {
		t, err := parseTime("start", s)
		if err != nil {
			return err
		}
		q.Start = t
	}
	if s := c.Query("end"); s != "" {
		t, err := parseTime("end", s)
		if err != nil {
			return err
		}
		q.End = t
	}
	switch o := journal.Outcome(strings.ToLower(c.Query("outcome"))); o {
	case "", journal.OutcomeSuccess, journal.OutcomeFailure, journal.OutcomeError:
		q.Outcome = o
	default:
		return badRequest("unknown outcome %q", o)
	}
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return badRequest("limit must be a non-negative integer")
		}
		q.Limit = n
	}
	recs, err := h.svc.Runs(c.UserContext(), q)
	if err != nil {
		return err
	}
	if recs == nil {
		recs = []journal.RunRecord{}
	}
	return ok(c, "runs", recs)
}

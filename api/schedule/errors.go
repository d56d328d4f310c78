package schedule

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/sita/sidang/core/sidang"
	"github.com/sita/sidang/core/trigger"
)

// errBadRequest marks malformed input that never reached the service.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// handleError is the fiber error handler. It maps domain errors onto
// status codes and keeps the structured body of failures that carry one.
func (h *Handler) handleError(c *fiber.Ctx, err error) error {
	var (
		failure  *sidang.SchedulingFailure
		cfgErr   *sidang.ConfigurationError
		conflict *sidang.EditConflict
		invalid  validator.ValidationErrors
		fiberErr *fiber.Error
	)
	switch {
	case errors.As(err, &failure):
		return failWithDetails(c, fiber.StatusConflict, failure.Error(), failure)
	case errors.As(err, &conflict):
		return failWithDetails(c, fiber.StatusConflict, conflict.Error(), conflict)
	case errors.As(err, &cfgErr):
		return failWithDetails(c, fiber.StatusUnprocessableEntity, cfgErr.Error(), cfgErr)
	case errors.Is(err, sidang.ErrNoCandidates):
		return fail(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &invalid):
		fields := make(map[string]string, len(invalid))
		for _, fe := range invalid {
			fields[fe.Field()] = fe.Tag()
		}
		return failWithDetails(c, fiber.StatusBadRequest, "validation failed", fields)
	case errors.Is(err, errBadRequest),
		errors.Is(err, sidang.ErrInvalidRange),
		errors.Is(err, sidang.ErrInvalidPatch),
		errors.Is(err, sidang.ErrUnknownLecturer),
		errors.Is(err, trigger.ErrInvalidTrigger):
		return fail(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, sidang.ErrLockContention):
		return fail(c, fiber.StatusLocked, err.Error())
	case errors.Is(err, sidang.ErrNotFound):
		return fail(c, fiber.StatusNotFound, err.Error())
	case errors.As(err, &fiberErr):
		return fail(c, fiberErr.Code, fiberErr.Message)
	}
	h.log.Errorf("%s %s: %v", c.Method(), c.Path(), err)
	return fail(c, fiber.StatusInternalServerError, "internal error")
}

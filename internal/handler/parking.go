package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parkmate/internal/lock"
	"github.com/iliyamo/parkmate/internal/logging"
	"github.com/iliyamo/parkmate/internal/middleware"
	"github.com/iliyamo/parkmate/internal/model"
	"github.com/iliyamo/parkmate/internal/repository"
	"github.com/iliyamo/parkmate/internal/service"
)

// ParkingHandler exposes the booking service over HTTP.
type ParkingHandler struct {
	Svc *service.BookingService
}

func NewParkingHandler(svc *service.BookingService) *ParkingHandler {
	if svc == nil {
		panic("nil booking service passed to NewParkingHandler")
	}
	return &ParkingHandler{Svc: svc}
}

// ----- DTOs -----

type slotDTO struct {
	SlotID        int        `json:"slot_id"`
	Status        string     `json:"status"`
	OwnerName     string     `json:"owner_name,omitempty"`
	VehicleNumber string     `json:"vehicle_number,omitempty"`
	EntryTime     *time.Time `json:"entry_time,omitempty"`
	ExitTime      *time.Time `json:"exit_time,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

func toSlotDTO(s model.Slot) slotDTO {
	out := slotDTO{SlotID: s.ID, Status: string(s.State)}
	if s.Occupancy != nil {
		entry, exit := s.Occupancy.EntryTime, s.Occupancy.ExitTime
		out.OwnerName = s.Occupancy.OwnerName
		out.VehicleNumber = s.Occupancy.VehicleNumber
		out.EntryTime = &entry
		out.ExitTime = &exit
	}
	if !s.UpdatedAt.IsZero() {
		u := s.UpdatedAt
		out.UpdatedAt = &u
	}
	return out
}

type recordDTO struct {
	ID              uint64    `json:"id"`
	SlotID          int       `json:"slot_id"`
	OwnerName       string    `json:"owner_name"`
	VehicleNumber   string    `json:"vehicle_number"`
	EntryTime       time.Time `json:"entry_time"`
	ExitTime        time.Time `json:"exit_time"`
	DurationMinutes int64     `json:"duration_minutes"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

func toRecordDTO(r model.BookingRecord) recordDTO {
	return recordDTO{
		ID:              r.ID,
		SlotID:          r.SlotID,
		OwnerName:       r.OwnerName,
		VehicleNumber:   r.VehicleNumber,
		EntryTime:       r.EntryTime,
		ExitTime:        r.ExitTime,
		DurationMinutes: r.DurationMinutes,
		Status:          string(r.State),
		CreatedAt:       r.CreatedAt,
	}
}

// bookReq accepts snake_case fields and, for older clients, camelCase.
type bookReq struct {
	OwnerName     string `json:"owner_name"`
	VehicleNumber string `json:"vehicle_number"`
	EntryTime     string `json:"entry_time"`
	ExitTime      string `json:"exit_time"`

	OwnerNameAlt     string `json:"ownerName"`
	VehicleNumberAlt string `json:"vehicleNumber"`
	EntryTimeAlt     string `json:"entryTime"`
	ExitTimeAlt      string `json:"exitTime"`
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func (r bookReq) toRequest(slotID int) service.BookRequest {
	return service.BookRequest{
		SlotID:        slotID,
		OwnerName:     firstNonEmpty(r.OwnerName, r.OwnerNameAlt),
		VehicleNumber: firstNonEmpty(r.VehicleNumber, r.VehicleNumberAlt),
		EntryTime:     firstNonEmpty(r.EntryTime, r.EntryTimeAlt),
		ExitTime:      firstNonEmpty(r.ExitTime, r.ExitTimeAlt),
	}
}

// slotIDParam parses the :id path parameter.
func slotIDParam(c echo.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	return id, err == nil
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(c echo.Context, err error) error {
	switch {
	case repository.IsNotFound(err):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case repository.IsConflict(err):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case repository.IsValidation(err):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})
	case errors.Is(err, lock.ErrLockTimeout):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "slot is busy, retry shortly"})
	}
	logging.Error(c.Request().Context()).Err(err).Msg("parking request failed")
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
}

// ListSlots returns every slot ordered by id.
func (h *ParkingHandler) ListSlots(c echo.Context) error {
	slots, err := h.Svc.ListSlots(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	out := make([]slotDTO, 0, len(slots))
	for _, s := range slots {
		out = append(out, toSlotDTO(s))
	}
	return c.JSON(http.StatusOK, echo.Map{"slots": out, "count": len(out)})
}

func (h *ParkingHandler) GetSlot(c echo.Context) error {
	id, ok := slotIDParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid slot id"})
	}
	slot, err := h.Svc.GetSlot(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toSlotDTO(slot))
}

// Book occupies a slot for the caller.
func (h *ParkingHandler) Book(c echo.Context) error {
	id, ok := slotIDParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid slot id"})
	}
	var req bookReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	slot, err := h.Svc.Book(c.Request().Context(), middleware.Caller(c), req.toRequest(id))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "slot booked", "slot": toSlotDTO(slot)})
}

// Release frees a slot.  A divergence between slot and history is reported
// in "warning" but does not fail the request.
func (h *ParkingHandler) Release(c echo.Context) error {
	id, ok := slotIDParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid slot id"})
	}
	res, err := h.Svc.Release(c.Request().Context(), middleware.Caller(c), id)
	if err != nil {
		return writeError(c, err)
	}
	body := echo.Map{"message": "slot released", "slot_id": res.SlotID}
	if res.Record != nil {
		body["record"] = toRecordDTO(*res.Record)
	}
	if res.Warning != "" {
		body["warning"] = res.Warning
	}
	return c.JSON(http.StatusOK, body)
}

// ListRecords returns the booking history newest first.
func (h *ParkingHandler) ListRecords(c echo.Context) error {
	records, err := h.Svc.ListRecords(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	out := make([]recordDTO, 0, len(records))
	for _, r := range records {
		out = append(out, toRecordDTO(r))
	}
	return c.JSON(http.StatusOK, echo.Map{"records": out, "count": len(out)})
}

// Reconcile reports slots whose state disagrees with the history.
func (h *ParkingHandler) Reconcile(c echo.Context) error {
	divs, err := h.Svc.Reconcile(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"consistent": len(divs) == 0, "divergences": divs})
}

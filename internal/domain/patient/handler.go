package patient

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lyengoian/patient-management-portal/internal/platform/apperr"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/statuses", h.ListStatuses)

	api.GET("/patients", h.ListPatients)
	api.GET("/patients/export", h.ExportPatients)
	api.GET("/patients/:id", h.GetPatient)
	api.POST("/patients", h.CreatePatient)
	api.PUT("/patients/:id", h.UpdatePatient)
	api.DELETE("/patients/:id", h.DeletePatient)
}

type messageResponse struct {
	Message string `json:"message"`
}

type createResponse struct {
	Message   string `json:"message"`
	PatientID int64  `json:"patientId"`
}

func (h *Handler) ListStatuses(c echo.Context) error {
	statuses, err := h.svc.ListStatuses(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, statuses)
}

func (h *Handler) ListPatients(c echo.Context) error {
	filter, err := listFilter(c)
	if err != nil {
		return err
	}
	patients, err := h.svc.ListPatients(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	if patients == nil {
		patients = []*Patient{}
	}
	return c.JSON(http.StatusOK, patients)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := patientID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var in Input
	if err := bindInput(c, &in); err != nil {
		return err
	}
	id, err := h.svc.CreatePatient(c.Request().Context(), &in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, createResponse{Message: "Patient added successfully", PatientID: id})
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := patientID(c)
	if err != nil {
		return err
	}
	var in Input
	if err := bindInput(c, &in); err != nil {
		return err
	}
	if err := h.svc.UpdatePatient(c.Request().Context(), id, &in); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "Patient updated successfully"})
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := patientID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeletePatient(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "Patient deleted successfully"})
}

// ExportPatients streams the filtered roster as an XLSX attachment.
func (h *Handler) ExportPatients(c echo.Context) error {
	filter, err := listFilter(c)
	if err != nil {
		return err
	}
	patients, err := h.svc.ListPatients(c.Request().Context(), filter)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := WriteRoster(&buf, patients); err != nil {
		return apperr.Storage("render roster workbook", err)
	}

	filename := fmt.Sprintf("patients-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, xlsxMIME, buf.Bytes())
}

func patientID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid patient id %q", c.Param("id"))
	}
	return id, nil
}

func listFilter(c echo.Context) (ListFilter, error) {
	filter := ListFilter{Query: c.QueryParam("q")}
	if raw := c.QueryParam("status_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			return filter, apperr.Validation("invalid status_id %q", raw)
		}
		filter.StatusID = id
	}
	return filter, nil
}

// bindInput decodes the JSON body. Decode failures are reported as validation
// errors; other binder statuses such as 413 and 415 are kept.
func bindInput(c echo.Context, in *Input) error {
	err := (&echo.DefaultBinder{}).BindBody(c, in)
	if err == nil {
		return nil
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if inner, ok := he.Internal.(*echo.HTTPError); ok {
			return inner
		}
		if he.Code != http.StatusBadRequest {
			return he
		}
		if he.Internal != nil {
			return apperr.Validation("malformed request body: %v", he.Internal)
		}
	}
	return apperr.Validation("malformed request body: %v", err)
}

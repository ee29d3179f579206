package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"battery_log/internal/apperr"
	"battery_log/internal/query"
	"battery_log/internal/rowstore"

	"github.com/gofiber/fiber/v2"
)

type adminHandler struct {
	query *query.Service
}

func filterFrom(c *fiber.Ctx) query.Filter {
	return query.Filter{
		BatteryID: strings.TrimSpace(c.Query("batteryId")),
		Date:      strings.TrimSpace(c.Query("date")),
		DateFrom:  strings.TrimSpace(c.Query("dateFrom")),
		DateTo:    strings.TrimSpace(c.Query("dateTo")),
	}
}

func (h *adminHandler) list(c *fiber.Ctx) error {
	t, err := h.query.List(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(orderedRows(t))
}

func (h *adminHandler) search(c *fiber.Ctx) error {
	id := filterFrom(c).BatteryID
	if id == "" {
		return apperr.Validation("batteryId query param required")
	}
	t, err := h.query.SearchByID(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(orderedRows(t))
}

func (h *adminHandler) byDate(c *fiber.Ctx) error {
	f := filterFrom(c)
	f.BatteryID = ""
	t, err := h.query.ByDate(c.UserContext(), f)
	if err != nil {
		return err
	}
	return c.JSON(orderedRows(t))
}

func (h *adminHandler) export(c *fiber.Ctx) error {
	format, err := query.ParseFormat(c.Query("format"))
	if err != nil {
		return err
	}
	file, err := h.query.Export(c.UserContext(), filterFrom(c), format)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, file.ContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", file.Name))
	return c.Send(file.Body)
}

// orderedRecord marshals as a JSON object whose keys follow the sheet header.
type orderedRecord struct {
	columns []string
	values  rowstore.Record
}

func (r orderedRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.values[col])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func orderedRows(t rowstore.Table) []orderedRecord {
	out := make([]orderedRecord, 0, len(t.Records))
	for _, rec := range t.Records {
		out = append(out, orderedRecord{columns: t.Columns, values: rec})
	}
	return out
}

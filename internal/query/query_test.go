package query

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"battery_log/internal/apperr"
	"battery_log/internal/rowstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func fixture() *rowstore.Memory {
	return rowstore.NewMemory(
		[]string{"Battery ID", "Date", "name", "id_2"},
		[]string{"B1", "2025-01-01", "a", ""},
		[]string{" B2 ", "2025-01-02", "b", "B1"},
		[]string{"B1", "2025/01/03", "c", ""},
		[]string{"B3", "not a date", "d", ""},
		[]string{"B1", "2025-01-05T08:30:00", "e", ""},
	)
}

func names(t rowstore.Table) []string {
	out := make([]string, 0, len(t.Records))
	for _, rec := range t.Records {
		out = append(out, rec["name"])
	}
	return out
}

func TestList(t *testing.T) {
	table, err := NewService(fixture()).List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Battery ID", "Date", "name", "id_2"}, table.Columns)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, names(table))
}

func TestListStoreFailure(t *testing.T) {
	store := fixture()
	store.ReadErr = errors.New("boom")

	_, err := NewService(store).List(context.Background())
	assert.ErrorIs(t, err, apperr.ErrStoreUnavailable)
}

func TestSearchByID(t *testing.T) {
	svc := NewService(fixture())

	table, err := svc.SearchByID(context.Background(), "B1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "e"}, names(table), "only the primary id column is searched")

	table, err = svc.SearchByID(context.Background(), " B2")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, names(table))
}

func TestSearchByIDNoMatch(t *testing.T) {
	table, err := NewService(fixture()).SearchByID(context.Background(), "B404")
	require.NoError(t, err)
	assert.NotNil(t, table.Records)
	assert.Empty(t, table.Records)
}

func TestSearchByIDRequiresID(t *testing.T) {
	_, err := NewService(fixture()).SearchByID(context.Background(), " ")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestByDate(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"single date", Filter{Date: "2025-01-02"}, []string{"b"}},
		{"single date other layout", Filter{Date: "2025-01-03"}, []string{"c"}},
		{"single date with time cell", Filter{Date: "2025-01-05"}, []string{"e"}},
		{"inclusive range", Filter{DateFrom: "2025-01-01", DateTo: "2025-01-03"}, []string{"a", "b", "c"}},
		{"same day range", Filter{DateFrom: "2025-01-02", DateTo: "2025-01-02"}, []string{"b"}},
		{"open end", Filter{DateFrom: "2025-01-03"}, []string{"c", "e"}},
		{"open start", Filter{DateTo: "2025-01-01"}, []string{"a"}},
		{"no match", Filter{Date: "2024-12-31"}, []string{}},
	}
	svc := NewService(fixture())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := svc.ByDate(context.Background(), tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(table))
		})
	}
}

func TestByDateSingleExactText(t *testing.T) {
	table, err := NewService(fixture()).ByDate(context.Background(), Filter{Date: "2025/01/03"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, names(table))
}

func TestByDateInvalidInput(t *testing.T) {
	svc := NewService(fixture())
	for _, f := range []Filter{
		{},
		{Date: "yesterday"},
		{DateFrom: "2025-13-01"},
		{DateFrom: "2025-01-05", DateTo: "2025-01-01"},
	} {
		_, err := svc.ByDate(context.Background(), f)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), "filter %+v", f)
	}
}

func TestByDateWithoutDateColumn(t *testing.T) {
	store := rowstore.NewMemory([]string{"id", "name"}, []string{"B1", "a"})

	_, err := NewService(store).ByDate(context.Background(), Filter{Date: "2025-01-01"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrNotConfigured)
	assert.Equal(t, "date column not found", apperr.MessageOf(err, ""))
}

func TestDateColumn(t *testing.T) {
	assert.Equal(t, "DATE", DateColumn([]string{"Updated Date", "DATE"}))
	assert.Equal(t, "Updated Date", DateColumn([]string{"id", "Updated Date"}))
	assert.Equal(t, "", DateColumn([]string{"id", "name"}))
}

func TestExportCSV(t *testing.T) {
	store := rowstore.NewMemory(
		[]string{"id", "date", "name"},
		[]string{"B1", "2025-01-01", `say "hi"`},
		[]string{"B2", "2025-01-02", "x"},
	)

	file, err := NewService(store).Export(context.Background(), Filter{BatteryID: "B1"}, FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "battery_B1_export.csv", file.Name)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.Equal(t, "\"id\",\"date\",\"name\"\n\"B1\",\"2025-01-01\",\"say \"\"hi\"\"\"", string(file.Body))
}

func TestExportNoMatchEmitsDefaultHeader(t *testing.T) {
	file, err := NewService(fixture()).Export(context.Background(), Filter{BatteryID: "nope"}, FormatCSV)
	require.NoError(t, err)

	want := `"id","date","chargingCycle","chargeCurrent","battVoltInitial","battVoltFinal",` +
		`"chargeTimeInitial","chargeTimeFinal","duration","capacity","temp","deformation",` +
		`"others","uin","name","photo"`
	assert.Equal(t, want, string(file.Body))
}

func TestExportXLSX(t *testing.T) {
	file, err := NewService(fixture()).Export(context.Background(), Filter{DateFrom: "2025-01-01", DateTo: "2025-01-02"}, FormatXLSX)
	require.NoError(t, err)
	assert.Equal(t, "battery_2025-01-01_to_2025-01-02_export.xlsx", file.Name)

	book, err := excelize.OpenReader(bytes.NewReader(file.Body))
	require.NoError(t, err)
	defer book.Close()

	rows, err := book.GetRows(xlsxSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Battery ID", "Date", "name", "id_2"}, rows[0])
	assert.Equal(t, []string{"2025-01-02", "b", "B1"}, rows[2][1:])
}

func TestExportName(t *testing.T) {
	tests := []struct {
		filter Filter
		want   string
	}{
		{Filter{}, "battery_all_export"},
		{Filter{BatteryID: "B1"}, "battery_B1_export"},
		{Filter{BatteryID: "B 1/x"}, "battery_B_1_x_export"},
		{Filter{Date: "2025-01-01"}, "battery_2025-01-01_export"},
		{Filter{DateFrom: "2025-01-01", DateTo: "2025-02-01"}, "battery_2025-01-01_to_2025-02-01_export"},
		{Filter{DateFrom: "2025-01-01"}, "battery_2025-01-01_to_end_export"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exportName(tt.filter))
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat("XLSX")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	_, err = ParseFormat("pdf")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

package settlements

import (
	"encoding/csv"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/incentives-backend/pkg/db/models"
	"github.com/angelmondragon/incentives-backend/pkg/enums"
)

func TestRenderReport(t *testing.T) {
	id := uuid.New()
	body, err := renderReport([]models.SettlementLogRow{{
		UserID:      id,
		Points:      42,
		Value:       decimal.RequireFromString("84.15"),
		HeldValue:   decimal.RequireFromString("14.85"),
		Name:        "Mona, Pharmacy",
		District:    "Dokki",
		Governorate: "Giza",
		Phone:       "+201001",
	}})
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(body))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, reportHeader, records[0])
	assert.Equal(t, []string{id.String(), "Mona, Pharmacy", "+201001", "Dokki", "Giza", "42", "84.15", "14.85"}, records[1])
}

func TestRenderReportEmpty(t *testing.T) {
	body, err := renderReport(nil)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(reportHeader, ",")+"\n", string(body))
}

func TestReportObject(t *testing.T) {
	run := models.SettlementRun{
		ID:         uuid.MustParse("00000000-0000-0000-0000-0000000000aa"),
		SupplierID: uuid.MustParse("00000000-0000-0000-0000-0000000000bb"),
		Method:     enums.DistributionDistrict,
		Month:      3,
		Year:       2026,
		Version:    2,
	}
	want := "settlements/00000000-0000-0000-0000-0000000000bb/2026-03/DISTRICT-v2-00000000-0000-0000-0000-0000000000aa.csv"
	assert.Equal(t, want, reportObject("settlements", run))
	assert.Equal(t, strings.TrimPrefix(want, "settlements/"), reportObject("", run))
}

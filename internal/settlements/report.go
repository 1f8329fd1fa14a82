package settlements

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/angelmondragon/incentives-backend/pkg/db/models"
)

var reportHeader = []string{"user_id", "name", "phone", "district", "governorate", "points", "value", "held_value"}

// renderReport writes the log rows as CSV.
func renderReport(rows []models.SettlementLogRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(reportHeader); err != nil {
		return nil, err
	}
	for _, row := range rows {
		record := []string{
			row.UserID.String(),
			row.Name,
			row.Phone,
			row.District,
			row.Governorate,
			strconv.FormatInt(row.Points, 10),
			row.Value.StringFixed(2),
			row.HeldValue.StringFixed(2),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func reportObject(prefix string, run models.SettlementRun) string {
	object := fmt.Sprintf("%s/%04d-%02d/%s-v%d-%s.csv", run.SupplierID, run.Year, run.Month, run.Method, run.Version, run.ID)
	if prefix == "" {
		return object
	}
	return prefix + "/" + object
}

package service

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/azurecost/internal/billingapi"
	costdomain "github.com/smallbiznis/azurecost/internal/cost/domain"
)

// Normalize turns a positional billing API result into one Row per result
// row, keyed by column name and kept in row order. It does not validate
// values.
func Normalize(result *billingapi.QueryResult) ([]costdomain.Row, error) {
	if result == nil {
		return nil, fmt.Errorf("%w: empty query result", costdomain.ErrProcessing)
	}
	if result.Columns == nil {
		return nil, fmt.Errorf("%w: query result has no columns", costdomain.ErrProcessing)
	}

	names := make([]string, len(result.Columns))
	for i, col := range result.Columns {
		name := strings.TrimSpace(col.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: column %d has no name", costdomain.ErrProcessing, i)
		}
		names[i] = name
	}

	rows := make([]costdomain.Row, 0, len(result.Rows))
	for i, values := range result.Rows {
		if len(values) != len(names) {
			return nil, fmt.Errorf("%w: row %d has %d values, expected %d",
				costdomain.ErrProcessing, i, len(values), len(names))
		}
		row := make(costdomain.Row, len(names))
		for j, name := range names {
			row[name] = values[j]
		}
		rows = append(rows, row)
	}

	return rows, nil
}

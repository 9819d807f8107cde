package db

import (
	"fmt"
	"strings"

	"github.com/stackgate/backend/internal/domain"
	"gorm.io/gorm"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// applyFilter turns parsed conditions into WHERE clauses. Columns come from
// the domain filter schemas, never from the request.
func applyFilter(q *gorm.DB, f domain.Filter) *gorm.DB {
	for _, c := range f.Conditions {
		col := c.Column
		switch c.Op {
		case domain.OpExact:
			q = q.Where(fmt.Sprintf("%s = ?", col), c.Value)
		case domain.OpIExact:
			q = q.Where(fmt.Sprintf("LOWER(%s) = LOWER(?)", col), c.Value)
		case domain.OpContains:
			q = q.Where(fmt.Sprintf("%s LIKE ?", col), "%"+likeEscaper.Replace(fmt.Sprint(c.Value))+"%")
		case domain.OpIContains:
			q = q.Where(fmt.Sprintf("LOWER(%s) LIKE LOWER(?)", col), "%"+likeEscaper.Replace(fmt.Sprint(c.Value))+"%")
		case domain.OpStartsWith:
			q = q.Where(fmt.Sprintf("%s LIKE ?", col), likeEscaper.Replace(fmt.Sprint(c.Value))+"%")
		case domain.OpIn:
			q = q.Where(fmt.Sprintf("%s IN ?", col), c.Value)
		case domain.OpGT:
			q = q.Where(fmt.Sprintf("%s > ?", col), c.Value)
		case domain.OpGTE:
			q = q.Where(fmt.Sprintf("%s >= ?", col), c.Value)
		case domain.OpLT:
			q = q.Where(fmt.Sprintf("%s < ?", col), c.Value)
		case domain.OpLTE:
			q = q.Where(fmt.Sprintf("%s <= ?", col), c.Value)
		}
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	return q
}

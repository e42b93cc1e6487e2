package echoapi

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/gurudigital/pelangi/core"
)

const (
	orderingParam = "ordering"
	limitParam    = "limit"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind reads `?ordering=field1,-field2` ("-" for descending).
func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field != "" {
			ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
		}
	}
}

// queryLimit reads `?limit=`; invalid values fall back to 0 (the service default).
func queryLimit(ctx echo.Context) int {
	limit, err := strconv.Atoi(ctx.QueryParam(limitParam))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

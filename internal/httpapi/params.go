package httpapi

import (
	"strconv"
	"strings"

	"github.com/sosodev/duration"

	"github.com/xtxerr/binwatch/internal/errors"
	"github.com/xtxerr/binwatch/internal/validation"
)

// parseHours accepts a number of hours ("48", "1.5") or an ISO-8601 duration
// ("PT48H", "P2D"). An empty value returns def. Values that are not finite,
// negative or above max are rejected.
func parseHours(v string, def, max float64) (float64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return def, nil
	}

	h, err := strconv.ParseFloat(v, 64)
	if err != nil {
		d, perr := duration.Parse(v)
		if perr != nil {
			return 0, errors.Wrapf(errors.ErrInvalidDuration, "%q", v)
		}
		h = d.ToTimeDuration().Hours()
	}

	if err := validation.ValidateHours(h, max); err != nil {
		return 0, errors.NewInvalidValue("hours", v, err.Error())
	}
	return h, nil
}

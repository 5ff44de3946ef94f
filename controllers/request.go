package controllers

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// bindBody decodes a JSON body into dst. A missing or malformed body leaves dst at its zero
// value, so field validation reports the problem instead of a parse error.
func bindBody(ctx *gin.Context, dst interface{}, reset func()) {
	if err := ctx.ShouldBindJSON(dst); err != nil {
		reset()
	}
}

// coordinate accepts a JSON number or a numeric string. Anything else leaves it unset.
type coordinate struct {
	value float64
	ok    bool
}

func (c *coordinate) UnmarshalJSON(b []byte) error {
	*c = coordinate{}
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		c.value, c.ok = n, true
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if v, ok := parseFloat(s); ok {
			c.value, c.ok = v, true
		}
	}
	return nil
}

func (c coordinate) ptr() *float64 {
	if !c.ok {
		return nil
	}
	v := c.value
	return &v
}

// parseFloat parses a finite decimal number.
func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

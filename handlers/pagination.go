package handlers

import (
	"strconv"

	"matatu-commuter-api/services"

	"github.com/gin-gonic/gin"
)

const (
	DefaultLimit = services.DefaultPageSize
	MaxLimit     = 200
)

// ParsePage reads page/limit query parameters, defaulting and capping them.
// Malformed or non-positive values fall back to the defaults.
func ParsePage(c *gin.Context) services.Page {
	p := services.Page{Number: 1, Limit: DefaultLimit}

	if pageStr := c.Query("page"); pageStr != "" {
		if n, err := strconv.Atoi(pageStr); err == nil && n > 0 {
			p.Number = n
		}
	}
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			p.Limit = l
		}
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}

	return p
}

package server

import (
	"fmt"
	"strconv"
	"time"

	"tw-tick-api/src/helpers"
	"tw-tick-api/src/models"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------

// queryBool reads an optional boolean query parameter.
func queryBool(c *gin.Context, key string, def bool) (bool, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, helpers.NewValidationError(fmt.Sprintf("query parameter %s must be a boolean, got %q", key, raw), nil)
	}
	return v, nil
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) queryOptions(c *gin.Context) (models.MQueryOptions, error) {
	convert, err := queryBool(c, "convert_formats", s.Config.DefaultConvertFormats)
	if err != nil {
		return models.MQueryOptions{}, err
	}
	volumes, err := queryBool(c, "calculate_volumes", true)
	if err != nil {
		return models.MQueryOptions{}, err
	}
	return models.MQueryOptions{
		ConvertFormats:   convert,
		CalculateVolumes: volumes,
		StartTime:        c.Query("start_time"),
		EndTime:          c.Query("end_time"),
	}, nil
}

// -----------------------------------------------------------------------------

// abortWithError writes the shared error body {"detail": {"message": ...}}.
func (s *FastAPIServer) abortWithError(c *gin.Context, err error) {
	status, msg := s.errHandler.Translate(err)
	c.AbortWithStatusJSON(status, models.MErrorResponse{Detail: models.MErrorDetail{Message: msg}})
}

// -----------------------------------------------------------------------------

func nowISO() string {
	return time.Now().Format(time.RFC3339)
}

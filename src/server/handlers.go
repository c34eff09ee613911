package server

import (
	"net/http"

	"tw-tick-api/src/models"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *FastAPIServer) getRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        s.Config.Name,
		"description": "Taiwan stock tick data over REST and WebSocket",
		"endpoints": gin.H{
			"tick_by_date":  "/api/v1/tick-data/{stock_id}/date/{date}",
			"tick_by_range": "/api/v1/tick-data/{stock_id}/range/{start_date}/{end_date}",
			"latest_tick":   "/api/v1/tick-data/{stock_id}/latest",
			"stocks":        "/api/v1/tick-data/stocks",
			"round_price":   "/api/v1/tick-data/price/round/{price}",
			"tick_stream":   "/ws/tick/{stock_id}/{date}",
			"heartbeat":     "/ws/heartbeat",
			"health":        "/api/health",
		},
		"timestamp": nowISO(),
	})
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) getHealth(c *gin.Context) {
	st := s.Governor.Stats()
	c.JSON(http.StatusOK, models.MHealthStatus{
		Status:             "ok",
		Timestamp:          nowISO(),
		Sources:            s.Sources,
		ActiveWebSockets:   st.ActiveWebSockets,
		WebSocketsPerIP:    st.WebSocketsPerIP,
		TrackedRateClients: st.TrackedRateClients,
	})
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) getTickDataByDate(c *gin.Context) {
	opts, err := s.queryOptions(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	resp, err := s.Query.FetchSingleDate(c.Request.Context(), c.Param("stock_id"), c.Param("date"), opts)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) getTickDataByRange(c *gin.Context) {
	opts, err := s.queryOptions(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	resp, err := s.Query.FetchRange(c.Request.Context(), c.Param("stock_id"), c.Param("start_date"), c.Param("end_date"), opts)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) getLatestTick(c *gin.Context) {
	opts, err := s.queryOptions(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	resp, err := s.Query.LatestTick(c.Request.Context(), c.Param("stock_id"), c.Query("date"), opts)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) getStocks(c *gin.Context) {
	resp, err := s.Query.ListStocks(c.Request.Context(), c.Query("date"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) getRoundPrice(c *gin.Context) {
	resp, err := s.Query.RoundPrice(c.Param("price"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

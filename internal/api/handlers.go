package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"stockdesk/internal/fetcher"
	"stockdesk/internal/quote"
)

// quoteRow is one row of a multi-symbol panel
type quoteRow struct {
	Symbol string        `json:"symbol"`
	Name   string        `json:"name,omitempty"`
	Quote  *quote.Record `json:"quote,omitempty"`
	Error  string        `json:"error,omitempty"`
}

func toRow(r fetcher.Result) quoteRow {
	row := quoteRow{Symbol: r.Symbol}
	if r.OK() {
		rec := r.Record
		row.Quote = &rec
	} else {
		row.Error = r.Error.Error()
	}
	return row
}

func toRows(results []fetcher.Result) []quoteRow {
	rows := make([]quoteRow, len(results))
	for i, r := range results {
		rows[i] = toRow(r)
	}
	return rows
}

func (s *Server) getHealth(c *gin.Context) {
	body := gin.H{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
		"relay":  s.relay != nil,
	}
	if s.desk != nil {
		view := s.desk.Favorites()
		body["favorites"] = len(view.Entries)
		body["favoritesDegraded"] = view.Degraded
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) getQuote(c *gin.Context) {
	l, err := s.desk.Lookup(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (s *Server) getPopular(c *gin.Context) {
	results, err := s.desk.Popular(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stocks": toRows(results)})
}

func (s *Server) getMarket(c *gin.Context) {
	indices, err := s.desk.Market(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	rows := make([]quoteRow, len(indices))
	for i, idx := range indices {
		rows[i] = toRow(idx.Result)
		rows[i].Name = idx.Name
	}
	c.JSON(http.StatusOK, gin.H{"indices": rows})
}

func (s *Server) listFavorites(c *gin.Context) {
	c.JSON(http.StatusOK, s.desk.Favorites())
}

type symbolRequest struct {
	Symbol string `json:"symbol"`
}

func (s *Server) addFavorite(c *gin.Context) {
	var req symbolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	entry, err := s.desk.AddFavorite(c.Request.Context(), req.Symbol)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (s *Server) toggleFavorite(c *gin.Context) {
	symbol := quote.NormalizeSymbol(c.Param("symbol"))
	on, err := s.desk.ToggleFavorite(c.Request.Context(), symbol)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "isFavorite": on})
}

func (s *Server) removeFavorite(c *gin.Context) {
	if err := s.desk.RemoveFavorite(c.Request.Context(), c.Param("symbol")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) clearFavorites(c *gin.Context) {
	if err := s.desk.ClearFavorites(c.Request.Context()); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) refreshFavorites(c *gin.Context) {
	results, err := s.desk.RefreshFavorites(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	view := s.desk.Favorites()
	c.JSON(http.StatusOK, gin.H{
		"results":  toRows(results),
		"entries":  view.Entries,
		"summary":  view.Summary,
		"degraded": view.Degraded,
	})
}

type importRequest struct {
	Tickers []string `json:"tickers"`
}

func (s *Server) importFavorites(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	report, err := s.desk.ImportTickers(c.Request.Context(), req.Tickers)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

type compareRequest struct {
	Stock1 string `json:"stock1"`
	Stock2 string `json:"stock2"`
}

func (s *Server) compare(c *gin.Context) {
	var req compareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	result, err := s.desk.Compare(c.Request.Context(), req.Stock1, req.Stock2)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) history(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"comparisons": s.desk.History()})
}

// Package api serves lookup tables and golden vectors over HTTP.
package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/goldmem/internal/accum"
	"github.com/samcharles93/goldmem/internal/logger"
	"github.com/samcharles93/goldmem/internal/lut"
	"github.com/samcharles93/goldmem/internal/memimage"
	"github.com/samcharles93/goldmem/internal/sampler"
)

// Limits caps the size of generated artifacts per request.
type Limits struct {
	MaxEntries int
	// MaxWeights bounds inputs*hidden, the size of W.
	MaxWeights int
}

func DefaultLimits() Limits {
	return Limits{
		MaxEntries: 1 << 16,
		MaxWeights: 1 << 16,
	}
}

type Server struct {
	log    logger.Logger
	limits Limits
}

func NewServer(log logger.Logger, limits Limits) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{
		log:    log.With("component", "api"),
		limits: limits,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.GET("/v1/functions", s.handleListFunctions)
	e.POST("/v1/luts", s.handleCreateLUT)
	e.POST("/v1/vectors", s.handleCreateVectors)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListFunctions(c *echo.Context) error {
	fns := sampler.Functions()
	data := make([]FunctionInfo, 0, len(fns))
	for _, fn := range fns {
		f, d := fn.Defaults()
		data = append(data, FunctionInfo{Name: fn.String(), Format: f, Domain: d})
	}
	return c.JSON(http.StatusOK, FunctionList{Object: "list", Data: data})
}

func (s *Server) handleCreateLUT(c *echo.Context) error {
	req, err := decodeJSON[LUTRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if req.Function == 0 {
		return writeBadRequest(c, "function is required")
	}
	f, d := req.Function.Defaults()
	if req.Format != nil {
		f = *req.Format
	}
	if req.Domain != nil {
		d = *req.Domain
	}
	if d.Count > s.limits.MaxEntries {
		return writeTooLarge(c, "domain.count", d.Count, s.limits.MaxEntries)
	}

	tbl, err := lut.Build(req.Function, d, f)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	s.log.Info("built lut", "function", tbl.Function, "format", tbl.Format, "entries", tbl.Len(), "saturations", tbl.Saturations)
	if tbl.Saturations > 0 {
		s.log.Warn("lut saturated", "function", tbl.Function, "count", tbl.Saturations)
	}

	if c.QueryParam("raw") == "1" {
		var buf bytes.Buffer
		if err := memimage.EncodeHex(&buf, tbl.Raw(), tbl.Format.TotalBits); err != nil {
			return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "")
		}
		c.Response().Header().Set("X-Saturations", fmt.Sprint(tbl.Saturations))
		return c.Blob(http.StatusOK, echo.MIMETextPlainCharsetUTF8, buf.Bytes())
	}

	entries, err := hexWords(tbl.Raw(), tbl.Format.TotalBits)
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "")
	}
	return c.JSON(http.StatusOK, LUTResponse{
		Object:      "lut",
		Function:    tbl.Function.String(),
		Format:      tbl.Format,
		Domain:      tbl.Domain,
		Bits:        tbl.Format.TotalBits,
		Entries:     entries,
		Saturations: tbl.Saturations,
	})
}

func (s *Server) handleCreateVectors(c *echo.Context) error {
	req, err := decodeJSON[VectorsRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	cfg := vectorsConfig(req)
	if cfg.Inputs > s.limits.MaxWeights {
		return writeTooLarge(c, "inputs", cfg.Inputs, s.limits.MaxWeights)
	}
	if cfg.Hidden > s.limits.MaxWeights {
		return writeTooLarge(c, "hidden", cfg.Hidden, s.limits.MaxWeights)
	}
	// Both factors are now small enough that the product cannot overflow.
	if cfg.Inputs > 0 && cfg.Hidden > 0 && cfg.Inputs*cfg.Hidden > s.limits.MaxWeights {
		return writeTooLarge(c, "inputs*hidden", cfg.Inputs*cfg.Hidden, s.limits.MaxWeights)
	}

	res, err := accum.Simulate(cfg)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	s.log.Info("simulated accumulator", "seed", cfg.Seed, "inputs", cfg.Inputs, "hidden", cfg.Hidden, "saturations", res.Saturations)

	resp := VectorsResponse{
		Object:      "vectors",
		Seed:        cfg.Seed,
		Inputs:      cfg.Inputs,
		Hidden:      cfg.Hidden,
		Shift:       cfg.Shift,
		Bias:        string(cfg.Bias),
		Output:      cfg.Output,
		Saturations: res.Saturations,
	}
	for _, dst := range []struct {
		out    *[]string
		values []int64
		bits   int
	}{
		{&resp.V, res.Inputs.V.Data, res.Inputs.V.DType.Bits()},
		{&resp.W, res.Inputs.W.Data, res.Inputs.W.DType.Bits()},
		{&resp.B, res.Inputs.B.Data, res.Inputs.B.DType.Bits()},
		{&resp.Acc, res.OutRaw(), cfg.Output.TotalBits},
	} {
		words, err := hexWords(dst.values, dst.bits)
		if err != nil {
			return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "")
		}
		*dst.out = words
	}
	return c.JSON(http.StatusOK, resp)
}

func vectorsConfig(req VectorsRequest) accum.Config {
	cfg := accum.DefaultConfig(req.Seed)
	if req.Inputs != 0 {
		cfg.Inputs = req.Inputs
	}
	if req.Hidden != 0 {
		cfg.Hidden = req.Hidden
	}
	cfg.Shift = req.Shift
	if req.Bias != "" {
		cfg.Bias = req.Bias
	}
	if req.BiasMin != nil {
		cfg.BiasMin = *req.BiasMin
	}
	if req.BiasMax != nil {
		cfg.BiasMax = *req.BiasMax
	}
	if req.Output != nil {
		cfg.Output = *req.Output
	}
	return cfg
}

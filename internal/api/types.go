package api

import (
	"github.com/samcharles93/goldmem/internal/accum"
	"github.com/samcharles93/goldmem/internal/sampler"
	"github.com/samcharles93/goldmem/pkg/fixed"
)

type FunctionInfo struct {
	Name   string         `json:"name"`
	Format fixed.Format   `json:"format"`
	Domain sampler.Domain `json:"domain"`
}

type FunctionList struct {
	Object string         `json:"object"`
	Data   []FunctionInfo `json:"data"`
}

type LUTRequest struct {
	Function sampler.Function `json:"function"`
	Format   *fixed.Format    `json:"format,omitempty"`
	Domain   *sampler.Domain  `json:"domain,omitempty"`
}

type LUTResponse struct {
	Object      string         `json:"object"`
	Function    string         `json:"function"`
	Format      fixed.Format   `json:"format"`
	Domain      sampler.Domain `json:"domain"`
	Bits        int            `json:"bits"`
	Entries     []string       `json:"entries"`
	Saturations int            `json:"saturations"`
}

type VectorsRequest struct {
	Seed    int64          `json:"seed"`
	Inputs  int            `json:"inputs,omitempty"`
	Hidden  int            `json:"hidden,omitempty"`
	Shift   *uint          `json:"shift,omitempty"`
	Bias    accum.BiasMode `json:"bias,omitempty"`
	BiasMin *int64         `json:"bias_min,omitempty"`
	BiasMax *int64         `json:"bias_max,omitempty"`
	Output  *fixed.Format  `json:"output,omitempty"`
}

type VectorsResponse struct {
	Object      string       `json:"object"`
	Seed        int64        `json:"seed"`
	Inputs      int          `json:"inputs"`
	Hidden      int          `json:"hidden"`
	Shift       *uint        `json:"shift,omitempty"`
	Bias        string       `json:"bias"`
	Output      fixed.Format `json:"output"`
	V           []string     `json:"v"`
	W           []string     `json:"w"`
	B           []string     `json:"b"`
	Acc         []string     `json:"acc"`
	Saturations int          `json:"saturations"`
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
}

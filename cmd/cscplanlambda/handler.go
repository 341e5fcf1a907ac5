package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"cscplan/internal/instance"
	"cscplan/internal/market"
	"cscplan/internal/model"
	"cscplan/internal/problem"
	"cscplan/internal/sampling"
	"cscplan/internal/stats"
)

const (
	modeSample = "sample"
	modeSource = "source"

	defaultSamples = 100
	maxSamples     = 10000
)

type solveRequest struct {
	Mode         string
	Instance     market.Instance
	Samples      int
	Seed         int64
	MinimizeBoth bool
	Fractional   bool
	Need         []float64
	Plan         []float64
}

type solveResponse struct {
	Mode       string                `json:"mode"`
	Instance   string                `json:"instance"`
	NVar       int                   `json:"n_var"`
	Need       []float64             `json:"need,omitempty"`
	Objectives []string              `json:"objectives"`
	Senses     []string              `json:"senses"`
	Population [][]float64           `json:"population"`
	Values     [][]float64           `json:"values"`
	Stats      []model.ObjectiveStat `json:"stats"`
	TimeMs     int64                 `json:"timeMs"`
}

// requestError carries the HTTP status a failed request maps to.
type requestError struct {
	status int
	err    error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(format string, args ...any) error {
	return &requestError{status: http.StatusBadRequest, err: fmt.Errorf(format, args...)}
}

// statusOf maps solve errors to HTTP status codes.
func statusOf(err error) int {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		return reqErr.status
	case errors.Is(err, market.ErrConfig):
		return http.StatusBadRequest
	case errors.Is(err, sampling.ErrInfeasible):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// parseRequest reads a request body. "instance" is either a builtin name or an
// inline instance document; it defaults to the reference market.
func parseRequest(body []byte) (solveRequest, error) {
	if !gjson.ValidBytes(body) {
		return solveRequest{}, badRequest("invalid JSON body")
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return solveRequest{}, badRequest("request body must be a JSON object")
	}

	req := solveRequest{
		Mode:         modeSample,
		Samples:      defaultSamples,
		Seed:         doc.Get("seed").Int(),
		MinimizeBoth: doc.Get("minimize_both").Bool(),
		Fractional:   doc.Get("fractional").Bool(),
	}
	if mode := doc.Get("mode"); mode.Exists() {
		req.Mode = mode.String()
	}
	if samples := doc.Get("samples"); samples.Exists() {
		req.Samples = int(samples.Int())
	}
	if req.Samples <= 0 || req.Samples > maxSamples {
		return solveRequest{}, badRequest("samples must be in [1, %d], got %d", maxSamples, req.Samples)
	}

	in, err := requestInstance(doc.Get("instance"))
	if err != nil {
		return solveRequest{}, err
	}
	req.Instance = in

	if req.Need, err = floatList(doc, "need"); err != nil {
		return solveRequest{}, err
	}
	if req.Plan, err = floatList(doc, "plan"); err != nil {
		return solveRequest{}, err
	}

	switch req.Mode {
	case modeSample:
		if req.Need != nil || req.Plan != nil {
			return solveRequest{}, badRequest("need and plan only apply to mode %q", modeSource)
		}
	case modeSource:
		if (req.Need == nil) == (req.Plan == nil) {
			return solveRequest{}, badRequest("mode %q requires exactly one of need or plan", modeSource)
		}
	default:
		return solveRequest{}, badRequest("unknown mode %q", req.Mode)
	}
	return req, nil
}

func requestInstance(field gjson.Result) (market.Instance, error) {
	switch {
	case !field.Exists():
		return instance.Reference(), nil
	case field.Type == gjson.String:
		in, ok := instance.Builtin(field.String())
		if !ok {
			return market.Instance{}, badRequest("unknown instance %q", field.String())
		}
		return in, nil
	case field.IsObject():
		in, err := instance.ParseJSON([]byte(field.Raw))
		if err != nil {
			return market.Instance{}, &requestError{status: http.StatusBadRequest, err: err}
		}
		return in, nil
	default:
		return market.Instance{}, badRequest("instance must be a name or an object")
	}
}

func floatList(doc gjson.Result, key string) ([]float64, error) {
	field := doc.Get(key)
	if !field.Exists() {
		return nil, nil
	}
	if !field.IsArray() {
		return nil, badRequest("%s must be an array of numbers", key)
	}
	var (
		out     []float64
		listErr error
	)
	field.ForEach(func(_, value gjson.Result) bool {
		if value.Type != gjson.Number {
			listErr = badRequest("%s[%d] is not a number", key, len(out))
			return false
		}
		out = append(out, value.Float())
		return true
	})
	if listErr != nil {
		return nil, listErr
	}
	if out == nil {
		out = []float64{}
	}
	return out, nil
}

type solver struct {
	logger  *zap.Logger
	workers int
}

func (s *solver) solve(ctx context.Context, req solveRequest) (solveResponse, error) {
	started := time.Now()
	m, err := market.New(req.Instance)
	if err != nil {
		return solveResponse{}, err
	}
	opts := problem.Options{
		MinimizeBoth: req.MinimizeBoth,
		Fractional:   req.Fractional,
		Workers:      s.workers,
		Logger:       s.logger,
	}
	full, err := problem.New(m, opts)
	if err != nil {
		return solveResponse{}, err
	}

	var (
		p     problem.Problem = full
		need  []float64
		names = []string{"profit", "virgin_ratio"}
	)
	if req.MinimizeBoth {
		names[0] = "neg_profit"
	}
	if req.Mode == modeSource {
		var sub *problem.Sourcing
		if req.Plan != nil {
			sub, err = full.ForPlan(req.Plan)
		} else {
			sub, err = problem.NewSourcing(m, req.Need, opts)
		}
		if err != nil {
			return solveResponse{}, err
		}
		p, need, names = sub, sub.Need(), []string{"cost", "virgin_ratio"}
	}

	pop, err := p.Sample(ctx, req.Samples, req.Seed)
	if err != nil {
		return solveResponse{}, err
	}
	values, err := p.Evaluate(pop)
	if err != nil {
		return solveResponse{}, err
	}
	senses := make([]string, 0, p.NObj())
	for _, sense := range p.Senses() {
		senses = append(senses, sense.String())
	}
	summary, err := stats.Summarize(values, names, senses)
	if err != nil {
		return solveResponse{}, err
	}

	elapsed := time.Since(started)
	s.logger.Info("solved",
		zap.String("mode", req.Mode),
		zap.String("instance", m.Name()),
		zap.Int("samples", req.Samples),
		zap.Int64("seed", req.Seed),
		zap.Duration("elapsed", elapsed),
	)
	return solveResponse{
		Mode:       req.Mode,
		Instance:   m.Name(),
		NVar:       p.NVar(),
		Need:       need,
		Objectives: names,
		Senses:     senses,
		Population: rows(pop),
		Values:     rows(values),
		Stats:      summary,
		TimeMs:     elapsed.Milliseconds(),
	}, nil
}

func rows(m *mat.Dense) [][]float64 {
	r, _ := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(nil, i, m)
	}
	return out
}

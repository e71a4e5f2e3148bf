package httpserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jobmatch/core/internal/domain"
	"github.com/jobmatch/core/internal/resume"
)

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// analyzeParams mirrors spec §4.4's operation signature's optional
// parameters, read from the multipart form alongside the résumé file.
type analyzeParams struct {
	Limit         int     `validate:"omitempty,min=1,max=50"`
	MinSimilarity float64 `validate:"omitempty,min=0,max=1"`
	GapDepth      int     `validate:"omitempty,min=1,max=50"`
	IncludeGap    *bool
}

// AnalyzeHandler implements POST /api/v1/resume/analyze: a multipart upload
// with a "resume" file field plus optional limit/min_similarity/gap_depth/
// include_gap form fields.
func (s *Server) AnalyzeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
			writeError(w, fmt.Errorf("%w: content-type must be multipart/form-data", domain.ErrInput))
			return
		}

		maxBytes := s.Cfg.MaxUploadMB * 1024 * 1024
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			writeError(w, fmt.Errorf("%w: %v", domain.ErrInput, err))
			return
		}

		file, header, err := r.FormFile("resume")
		if err != nil {
			writeError(w, fmt.Errorf("%w: resume file required", domain.ErrInput))
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, fmt.Errorf("%w: read resume: %v", domain.ErrInput, err))
			return
		}

		mime := mimetype.Detect(data)

		params, err := parseAnalyzeParams(r)
		if err != nil {
			writeError(w, err)
			return
		}

		text, err := s.Extractor.Extract(r.Context(), data, mime.String(), s.Cfg.ResumeMaxPages)
		if err != nil {
			writeError(w, fmt.Errorf("%w: extract %s (detected %s): %v", domain.ErrInput, header.Filename, mime.String(), err))
			return
		}

		opts := resume.Options{
			Limit:         params.Limit,
			MinSimilarity: params.MinSimilarity,
			GapDepth:      params.GapDepth,
			IncludeGap:    params.IncludeGap,
		}
		if opts.Limit == 0 {
			opts.Limit = s.Cfg.ResumeMatchLimit
		}
		if opts.MinSimilarity == 0 {
			opts.MinSimilarity = s.Cfg.ResumeMinSimilarity
		}
		if opts.GapDepth == 0 {
			opts.GapDepth = s.Cfg.ResumeGapDepth
		}
		if opts.IncludeGap == nil {
			v := s.Cfg.ResumeIncludeGap
			opts.IncludeGap = &v
		}

		result, err := s.Analyzer.Analyze(r.Context(), text, opts)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, analyzeResponse{
			AnalysisID:       uuid.New().String(),
			Profile:          result.Profile,
			Matches:          result.Matches,
			ProcessingTimeMs: result.ProcessingTimeMs,
		})
	}
}

// analyzeResponse is the wire shape returned to the client. AnalysisID is a
// correlation id for this request only, not persisted anywhere: the dispatch
// core has no record to key it against.
type analyzeResponse struct {
	AnalysisID       string               `json:"analysis_id"`
	Profile          domain.ResumeProfile `json:"profile"`
	Matches          []domain.MatchResult `json:"matches"`
	ProcessingTimeMs int64                `json:"processing_time_ms"`
}

func parseAnalyzeParams(r *http.Request) (analyzeParams, error) {
	var p analyzeParams
	var err error

	if v := r.FormValue("limit"); v != "" {
		if p.Limit, err = strconv.Atoi(v); err != nil {
			return p, fmt.Errorf("%w: limit must be an integer", domain.ErrInput)
		}
	}
	if v := r.FormValue("min_similarity"); v != "" {
		if p.MinSimilarity, err = strconv.ParseFloat(v, 64); err != nil {
			return p, fmt.Errorf("%w: min_similarity must be a number", domain.ErrInput)
		}
	}
	if v := r.FormValue("gap_depth"); v != "" {
		if p.GapDepth, err = strconv.Atoi(v); err != nil {
			return p, fmt.Errorf("%w: gap_depth must be an integer", domain.ErrInput)
		}
	}
	if v := r.FormValue("include_gap"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return p, fmt.Errorf("%w: include_gap must be a boolean", domain.ErrInput)
		}
		p.IncludeGap = &b
	}

	if err := getValidator().Struct(p); err != nil {
		return p, fmt.Errorf("%w: %v", domain.ErrInput, err)
	}
	return p, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

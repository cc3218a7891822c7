// Package api serves the staged-decode pipeline over HTTP.
//
// Uploaded files are decoded in memory and only summaries are returned: the
// verdict, the published layout and the diagnostics. Pixel data never leaves
// the process.
package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/dngstage/internal/backend"
	"github.com/samcharles93/dngstage/internal/classify"
	"github.com/samcharles93/dngstage/internal/logger"
	"github.com/samcharles93/dngstage/internal/pipeline"
	"github.com/samcharles93/dngstage/internal/version"
	"github.com/samcharles93/dngstage/pkg/dng"
)

// DefaultMaxBodyBytes bounds uploaded files.
const DefaultMaxBodyBytes = 512 << 20

type Config struct {
	Host         backend.Host
	Codecs       *backend.Registry
	Defaults     pipeline.Options
	Log          logger.Logger
	MaxBodyBytes int64
	StoreLimit   int
}

type Server struct {
	host     backend.Host
	codecs   *backend.Registry
	defaults pipeline.Options
	log      logger.Logger
	maxBody  int64
	store    *ExtractionStore
	clock    func() time.Time
}

func NewServer(cfg Config) *Server {
	if cfg.Log == nil {
		cfg.Log = logger.Discard()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Server{
		host:     cfg.Host,
		codecs:   cfg.Codecs,
		defaults: cfg.Defaults,
		log:      cfg.Log,
		maxBody:  cfg.MaxBodyBytes,
		store:    NewExtractionStore(cfg.StoreLimit),
		clock:    time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)

	e.POST("/v1/classify", s.handleClassify)
	e.POST("/v1/inspect", s.handleInspect)
	e.POST("/v1/extract", s.handleExtract)
	e.GET("/v1/extractions/:id", s.handleGetExtraction)
	e.DELETE("/v1/extractions/:id", s.handleDeleteExtraction)
}

// session returns a fresh session so diagnostics never leak between
// requests.
func (s *Server) session() *pipeline.Session {
	return pipeline.NewSession(s.host, s.codecs, s.log)
}

func (s *Server) handleHealth(c *echo.Context) error {
	name := backend.None
	if s.host != nil {
		name = s.host.Name()
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"backend": name,
		"version": version.Resolve(),
	})
}

func (s *Server) handleClassify(c *echo.Context) error {
	req, err := decodeJSON[ClassifyRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	opts := s.defaults
	if req.Categories != nil {
		cats, err := classify.ParseCategories(req.Categories)
		if err != nil {
			return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error(), "categories", "")
		}
		opts.Classify.Categories = cats
	}
	opts.Classify.AddPreviews = opts.Classify.AddPreviews || req.AddPreviews

	sess := s.session()
	v := sess.Classify(nil, pipeline.Request{Meta: req.Meta.Meta(), Options: opts})
	return c.JSON(http.StatusOK, SummarizeVerdict(v, sess.Diag))
}

func (s *Server) handleInspect(c *echo.Context) error {
	body, err := readBody(c, s.maxBody)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	r := bytes.NewReader(body)
	idx, err := dng.Parse(r)
	if err != nil {
		return writeError(c, http.StatusUnprocessableEntity, "data_error", err.Error(), "", pipeline.DataError.String())
	}
	out := SummarizeIndex(idx)
	if req, ok := pipeline.RequestFromIndex(idx, int64(len(body))); ok {
		req.Options = s.defaults
		sess := s.session()
		v := SummarizeVerdict(sess.Classify(r, req), sess.Diag)
		out.Verdict = &v
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleExtract(c *echo.Context) error {
	opts, err := extractOptions(c, s.defaults)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	body, err := readBody(c, s.maxBody)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}

	sess := s.session()
	var (
		res *pipeline.Result
		v   classify.Verdict
	)
	r := bytes.NewReader(body)
	req, err := requestFromBody(r, int64(len(body)))
	if err == nil {
		req.Options = opts
		res, v, err = sess.Extract(c.Request().Context(), r, req)
	}
	defer func() {
		if cerr := res.Close(); cerr != nil {
			s.log.Warn("releasing extraction", "err", cerr)
		}
	}()

	out := SummarizeExtraction(res, v, sess.Diag, err)
	if res != nil {
		out.ID = "ext_" + res.ID
	} else {
		out.ID = newExtractionID()
	}
	out.CreatedAt = s.clock().Unix()
	s.store.Save(out)
	return c.JSON(statusOf(err), out)
}

// requestFromBody builds the request for the main image of an uploaded file
// and rewinds r for the pipeline.
func requestFromBody(r *bytes.Reader, size int64) (pipeline.Request, error) {
	idx, err := dng.Parse(r)
	if err != nil {
		return pipeline.Request{}, fmt.Errorf("%w: %v", pipeline.ErrContainerInvalid, err)
	}
	req, ok := pipeline.RequestFromIndex(idx, size)
	if !ok {
		return pipeline.Request{}, fmt.Errorf("%w: no main image", pipeline.ErrContainerInvalid)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return pipeline.Request{}, err
	}
	return req, nil
}

func (s *Server) handleGetExtraction(c *echo.Context) error {
	id := c.Param("id")
	out, ok := s.store.Get(id)
	if !ok {
		return writeNotFound(c, "extraction not found")
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleDeleteExtraction(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, "extraction not found")
	}
	return c.JSON(http.StatusOK, DeleteExtractionResp{
		ID:      id,
		Object:  "extraction.deleted",
		Deleted: true,
	})
}

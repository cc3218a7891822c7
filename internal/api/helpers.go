package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/dngstage/internal/classify"
	"github.com/samcharles93/dngstage/internal/pipeline"
)

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, "", "")
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg, "", "")
}

func writeError(c *echo.Context, status int, errType, msg, param, code string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Code:    code,
			Param:   param,
		},
	})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

// readBody reads at most limit bytes of the request body.
func readBody(c *echo.Context, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, newInvalidRequest("request body exceeds " + strconv.FormatInt(limit, 10) + " bytes")
	}
	if len(body) == 0 {
		return nil, newInvalidRequest("request body is empty")
	}
	return body, nil
}

// parseBool accepts the query flag forms "1", "true" and the bare key.
func parseBool(c *echo.Context, name string, def bool) (bool, error) {
	query := c.Request().URL.Query()
	if _, ok := query[name]; !ok {
		return def, nil
	}
	q := query.Get(name)
	if q == "" {
		return true, nil
	}
	v, err := strconv.ParseBool(q)
	if err != nil {
		return false, newInvalidRequest("query " + name + ": expected a boolean")
	}
	return v, nil
}

// extractOptions applies the query flags of an extract call on top of def.
func extractOptions(c *echo.Context, def pipeline.Options) (pipeline.Options, error) {
	opts := def
	var err error
	flags := []struct {
		name string
		dst  *bool
	}{
		{"stage2", &opts.Stage.Stage2},
		{"stage3", &opts.Stage.Stage3},
		{"stage2_if_present", &opts.Stage.Stage2IfPresent},
		{"stage3_if_present", &opts.Stage.Stage3IfPresent},
		{"zero_copy", &opts.Materialize.ZeroCopy},
		{"float_to_int", &opts.Materialize.FloatToInt},
		{"allow_size_change", &opts.AllowSizeChange},
		{"add_previews", &opts.Classify.AddPreviews},
	}
	for _, f := range flags {
		if *f.dst, err = parseBool(c, f.name, *f.dst); err != nil {
			return opts, err
		}
	}
	if q := strings.TrimSpace(c.Request().URL.Query().Get("categories")); q != "" {
		cats, err := classify.ParseCategories(strings.Split(q, ","))
		if err != nil {
			return opts, newInvalidRequest(err.Error())
		}
		opts.Classify.Categories = cats
	}
	return opts, nil
}

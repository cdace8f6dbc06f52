package track

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// ParamsStorage flattens request parameters from a JSON body, a form body
// (urlencoded or multipart) or the query string, in that preference order.
type ParamsStorage struct {
	params map[string]string
}

func NewParamsStorage(c echo.Context, maxBodySize int64) (*ParamsStorage, error) {
	ps := &ParamsStorage{
		params: make(map[string]string),
	}

	contentType := c.Request().Header.Get("Content-Type")
	switch {
	case strings.Contains(contentType, "application/json"):
		limitedReader := io.LimitReader(c.Request().Body, maxBodySize+1)
		bodyBytes, err := io.ReadAll(limitedReader)
		if err != nil {
			return nil, err
		}
		if int64(len(bodyBytes)) > maxBodySize {
			return nil, fmt.Errorf("request body too large")
		}
		ps.params = parseJSONParams(bodyBytes)
	case strings.Contains(contentType, "multipart/form-data"),
		strings.Contains(contentType, "application/x-www-form-urlencoded"):
		form, err := c.FormParams()
		if err != nil {
			return nil, err
		}
		for key, values := range form {
			if len(values) > 0 && values[0] != "" {
				ps.params[key] = values[0]
			}
		}
	}

	if len(ps.params) == 0 {
		for key, values := range c.QueryParams() {
			if len(values) > 0 && values[0] != "" {
				ps.params[key] = values[0]
			}
		}
	}

	return ps, nil
}

func parseJSONParams(bodyContent []byte) map[string]string {
	bodyParams := make(map[string]string)
	var parsed map[string]interface{}
	if json.Unmarshal(bodyContent, &parsed) != nil {
		return bodyParams
	}
	for key, val := range parsed {
		switch v := val.(type) {
		case string:
			bodyParams[key] = v
		case float64:
			bodyParams[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			bodyParams[key] = strconv.FormatBool(v)
		}
	}
	return bodyParams
}

func (p *ParamsStorage) Get(key string) (string, bool) {
	val, ok := p.params[key]
	return val, ok && len(val) > 0
}

func (p *ParamsStorage) GetFloat(key string) (float64, bool) {
	val, ok := p.Get(key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func (p *ParamsStorage) GetInt(key string) (int64, bool) {
	val, ok := p.Get(key)
	if !ok {
		return 0, false
	}
	i, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false
	}
	return i, true
}

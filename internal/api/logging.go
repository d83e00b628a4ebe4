package api

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Query parameters whose values never reach the access log
var redactedParams = []string{"token"}

// RequestLogger is gin's access log with credentials stripped from the query
func RequestLogger(out io.Writer) gin.HandlerFunc {
	return gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: formatRequest,
		Output:    out,
	})
}

func formatRequest(param gin.LogFormatterParams) string {
	if param.Latency > time.Minute {
		param.Latency = param.Latency.Truncate(time.Second)
	}
	return fmt.Sprintf("[GIN] %v | %3d | %13v | %15s | %-7s %#v\n%s",
		param.TimeStamp.Format("2006/01/02 - 15:04:05"),
		param.StatusCode,
		param.Latency,
		param.ClientIP,
		param.Method,
		redactQuery(param.Path),
		param.ErrorMessage,
	)
}

// redactQuery replaces the values of sensitive query parameters in a
// request path. Paths without a query are returned unchanged.
func redactQuery(path string) string {
	base, rawQuery, ok := strings.Cut(path, "?")
	if !ok {
		return path
	}
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		// unparseable: keep the path, drop the query
		return base + "?REDACTED"
	}
	changed := false
	for _, name := range redactedParams {
		if _, present := query[name]; present {
			query.Set(name, "REDACTED")
			changed = true
		}
	}
	if !changed {
		return path
	}
	return base + "?" + query.Encode()
}

package render

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"
)

// StringData writes a pre-marshaled SSE data line to the client.
func StringData(c *gin.Context, str string) error {
	str = strings.TrimPrefix(str, "data:")
	str = strings.TrimSuffix(str, "\r")
	c.Render(-1, customEvent{data: "data: " + str})
	c.Writer.Flush()
	return nil
}

// ObjectData marshals object and writes it as one SSE data line.
func ObjectData(c *gin.Context, object any) error {
	jsonData, err := json.Marshal(object)
	if err != nil {
		return errors.Wrap(err, "error marshalling object")
	}
	return StringData(c, string(jsonData))
}

// Done terminates the SSE stream the OpenAI way.
func Done(c *gin.Context) {
	_ = StringData(c, "[DONE]")
}

// customEvent renders a raw SSE frame. gin's sse render escapes newlines in a
// way streaming clients do not expect, so frames are written verbatim.
type customEvent struct {
	data string
}

func (r customEvent) Render(w http.ResponseWriter) error {
	r.WriteContentType(w)
	_, err := fmt.Fprintf(w, "%s\n\n", r.data)
	return err
}

func (r customEvent) WriteContentType(w http.ResponseWriter) {
	header := w.Header()
	if _, ok := header["Content-Type"]; !ok {
		header["Content-Type"] = []string{"text/event-stream"}
	}
}

package warmup

import (
	"fmt"
	"net/http"
)

// discardWriter is an http.ResponseWriter that keeps only the status and
// headers.
type discardWriter struct {
	header http.Header
	status int
}

func (d *discardWriter) Header() http.Header { return d.header }

func (d *discardWriter) Write(p []byte) (int, error) {
	if d.status == 0 {
		d.status = http.StatusOK
	}
	return len(p), nil
}

func (d *discardWriter) WriteHeader(status int) {
	if d.status == 0 {
		d.status = status
	}
}

// err reports non-2xx answers. A degraded badge is still a 200 and counts
// as success: the value is cached either way.
func (d *discardWriter) err() error {
	status := d.status
	if status == 0 {
		status = http.StatusOK
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("status %d", status)
	}
	return nil
}

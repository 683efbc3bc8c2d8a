package viewer

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eleven-am/signstream/internal/frame"
)

const (
	previewBoundary = "frame"
	previewInterval = 100 * time.Millisecond
)

// servePreview streams the source's latest frame as multipart JPEG until the
// client goes away. Frames are only written when they change.
func servePreview(ctx context.Context, c echo.Context, src frame.Source, interval time.Duration) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "multipart/x-mixed-replace; boundary="+previewBoundary)
	res.Header().Set("Cache-Control", "no-cache")
	res.WriteHeader(http.StatusOK)

	mw := multipart.NewWriter(res)
	if err := mw.SetBoundary(previewBoundary); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last []byte
	for {
		if src.IsReady() {
			data, err := src.CaptureFrame(ctx)
			if err == nil && len(data) > 0 && !bytes.Equal(last, data) {
				if err := writePreviewPart(mw, data); err != nil {
					return err
				}
				res.Flush()
				last = data
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func writePreviewPart(mw *multipart.Writer, data []byte) error {
	header := textproto.MIMEHeader{}
	header.Set("Content-Type", "image/jpeg")
	header.Set("Content-Length", fmt.Sprint(len(data)))

	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = part.Write(data)
	return err
}

package health

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shiv669/echo-core-go/internal/pkg/nativelog"
)

const (
	logTailBytes    = 16 << 10
	streamPingEvery = 15 * time.Second
)

// streamLog tails the native log over SSE: one initial "tail" event carrying
// the current end of today's file, then live "log" events from the stream hub.
func streamLog(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	send := func(eventType, data string) {
		payload, err := json.Marshal(gin.H{"type": eventType, "data": data})
		if err != nil {
			return
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
		c.Writer.Flush()
	}

	if tail := readTail(nativelog.TodayFilePath(time.Now()), logTailBytes); tail != "" {
		send("tail", tail)
	}

	id, frames := nativelog.Subscribe(0)
	defer nativelog.Unsubscribe(id)

	ping := time.NewTicker(streamPingEvery)
	defer ping.Stop()

	done := c.Request.Context().Done()
	for {
		select {
		case <-done:
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			send("log", frame)
		case <-ping.C:
			fmt.Fprint(c.Writer, ": ping\n\n")
			c.Writer.Flush()
		}
	}
}

// readTail returns up to max trailing bytes of the file, aligned to the first
// full line when the front was clipped.
func readTail(path string, max int64) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.Size() == 0 {
		return ""
	}

	offset := int64(0)
	if info.Size() > max {
		offset = info.Size() - max
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return ""
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return ""
	}

	out := string(data)
	if offset > 0 {
		if i := strings.IndexByte(out, '\n'); i >= 0 {
			out = out[i+1:]
		}
	}
	return out
}

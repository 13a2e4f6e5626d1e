package cli

import (
	"fmt"
	"io"

	"github.com/hupe1980/rescache/codec"
)

// OutputFormatter writes command results as text or with a codec.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// Summary is the result of a load or watch run.
type Summary struct {
	Files      int   `json:"files" yaml:"files"`
	Ready      int   `json:"ready" yaml:"ready"`
	Failed     int   `json:"failed" yaml:"failed"`
	Rejected   int   `json:"rejected" yaml:"rejected"`
	Bytes      int64 `json:"bytes" yaml:"bytes"`
	CacheBytes int64 `json:"cache_bytes" yaml:"cache_bytes"`
	Reloads    int64 `json:"reloads" yaml:"reloads"`
	DurationMS int64 `json:"duration_ms" yaml:"duration_ms"`
}

// Print writes s in the configured format.
func (f *OutputFormatter) Print(s Summary) error {
	if c, ok := codec.ByName(f.Format); ok {
		b, err := c.Marshal(s)
		if err != nil {
			return err
		}
		if c.Name() == "json" {
			b = append(b, '\n')
		}
		_, err = f.Writer.Write(b)
		return err
	}

	_, err := fmt.Fprintf(f.Writer,
		"files: %d\nready: %d\nfailed: %d\nrejected: %d\nbytes: %d\ncache bytes: %d\nreloads: %d\nduration: %dms\n",
		s.Files, s.Ready, s.Failed, s.Rejected, s.Bytes, s.CacheBytes, s.Reloads, s.DurationMS)
	return err
}

package restyutil

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

// FilesystemOutput writes every HTTP exchange of a resty client into its own
// file under a directory. Meant for debugging portal changes, the files
// contain cookies and tokens.
type FilesystemOutput struct {
	directory string
	seq       *atomic.Int64
}

// NewFilesystemOutput empties dir and prepares it for writing.
func NewFilesystemOutput(dir string) (FilesystemOutput, error) {
	err := os.RemoveAll(dir)
	if err != nil {
		return FilesystemOutput{}, err
	}
	err = os.MkdirAll(dir, 0700)
	if err != nil {
		return FilesystemOutput{}, err
	}
	return FilesystemOutput{directory: dir, seq: &atomic.Int64{}}, nil
}

func (o FilesystemOutput) Write(id string, contents string) {
	err := os.WriteFile(filepath.Join(o.directory, id), []byte(contents), 0600)
	if err != nil {
		slog.Warn("failed to write message info file", "id", id, "err", err)
	}
}

// Attach registers a response hook on client that dumps each exchange.
func (o FilesystemOutput) Attach(client *resty.Client) {
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		o.Write(o.nextId(res.Request), formatExchange(res))
		return nil
	})
}

func (o FilesystemOutput) nextId(req *resty.Request) string {
	n := o.seq.Add(1)
	path := "request"
	if req.RawRequest != nil {
		path = strings.Trim(req.RawRequest.URL.Path, "/")
		path = strings.NewReplacer("/", "_", ".", "_").Replace(path)
	}
	return fmt.Sprintf("%04d_%s_%s.txt", n, req.Method, path)
}

func formatHeader(b *strings.Builder, header http.Header) {
	keys := make([]string, 0, len(header))
	for key := range header {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(b, "%s: %s\n", key, strings.Join(header[key], ", "))
	}
}

func formatExchange(res *resty.Response) string {
	b := &strings.Builder{}
	req := res.Request
	fmt.Fprintf(b, "%s %s\n", req.Method, req.URL)
	if req.RawRequest != nil {
		formatHeader(b, req.RawRequest.Header)
	}
	if len(req.FormData) > 0 {
		fmt.Fprintf(b, "\n%s\n", req.FormData.Encode())
	}

	fmt.Fprintf(b, "\n---\n\n%s\n", res.Status())
	formatHeader(b, res.Header())
	fmt.Fprintf(b, "\n%s\n", res.String())
	return b.String()
}

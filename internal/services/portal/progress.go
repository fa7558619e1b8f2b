package portal

import (
	"bytes"
	"io"
	"mime/multipart"
	"os"
)

// ProgressEvent reports how much of an upload body has been sent.
type ProgressEvent struct {
	Loaded  int64
	Total   int64
	Percent int
}

// ProgressFunc receives the progress events of a single upload. Events
// arrive with strictly increasing Percent and stop once the upload completes
// or fails.
type ProgressFunc func(ProgressEvent)

// progressReader counts bytes handed to the transport.
type progressReader struct {
	r      io.Reader
	total  int64
	loaded int64
	last   int
	notify ProgressFunc
}

func newProgressReader(r io.Reader, total int64, notify ProgressFunc) *progressReader {
	return &progressReader{r: r, total: total, last: -1, notify: notify}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.loaded += int64(n)
		percent := int(p.loaded * 100 / p.total)
		if percent > 100 {
			percent = 100
		}
		if percent > p.last {
			p.last = percent
			p.notify(ProgressEvent{Loaded: p.loaded, Total: p.total, Percent: percent})
		}
	}
	return n, err
}

// payloadSize returns the number of bytes left in r, or -1 if it cannot be
// told without consuming r.
func payloadSize(r io.Reader) int64 {
	switch v := r.(type) {
	case *os.File:
		info, err := v.Stat()
		if err != nil || !info.Mode().IsRegular() {
			return -1
		}
		offset, err := v.Seek(0, io.SeekCurrent)
		if err != nil {
			return -1
		}
		return info.Size() - offset
	case interface{ Len() int }:
		return int64(v.Len())
	case interface{ Size() int64 }:
		return v.Size()
	}
	return -1
}

// multipartFile streams payload as the single file part named field. The
// framing is rendered up front so the total length is exact whenever size is
// known; otherwise the returned length is -1.
func multipartFile(field, filename string, payload io.Reader, size int64) (io.Reader, string, int64, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if _, err := writer.CreateFormFile(field, filename); err != nil {
		return nil, "", 0, err
	}
	head := bytes.Clone(buf.Bytes())
	buf.Reset()

	if err := writer.Close(); err != nil {
		return nil, "", 0, err
	}
	tail := bytes.Clone(buf.Bytes())

	total := int64(-1)
	if size >= 0 {
		total = int64(len(head)) + size + int64(len(tail))
	}

	body := io.MultiReader(bytes.NewReader(head), payload, bytes.NewReader(tail))
	return body, writer.FormDataContentType(), total, nil
}

type formField struct {
	name  string
	value string
}

// multipartForm encodes plain form fields in order.
func multipartForm(fields ...formField) (io.Reader, string, int64, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for _, f := range fields {
		if err := writer.WriteField(f.name, f.value); err != nil {
			return nil, "", 0, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", 0, err
	}

	return &buf, writer.FormDataContentType(), int64(buf.Len()), nil
}

package source

import (
	"fmt"
	"io"
	"sync"

	"github.com/valyala/fasthttp"
)

// remoteReadAhead is how much a remoteRasterReader over-fetches past a
// requested range on a miss, so the sequential tag/IFD reads Open and
// container.readDirectory do against a remote COG (header, directory
// chain, buffered metadata window) usually land in its buffer instead of
// costing a second HTTP round trip.
const remoteReadAhead = 64 * 1024

// remoteRasterReader is an io.ReadSeeker over a raster served via HTTP range
// requests, with a read-ahead buffer so the mostly-sequential metadata reads
// in Open/openContainer don't each cost their own round trip.
type remoteRasterReader struct {
	url    string
	client *fasthttp.Client
	size   int64

	mu  sync.Mutex
	pos int64

	buffer      []byte
	bufferStart int64
	bufferEnd   int64
}

// newRemoteReader opens a remote raster for range-request reads, probing
// its size with a HEAD request up front so Seek(io.SeekEnd) and EOF
// detection both work without guessing.
func newRemoteReader(url string, client *fasthttp.Client) *remoteRasterReader {
	rr := &remoteRasterReader{url: url, client: client, bufferStart: -1, bufferEnd: -1}
	rr.size = rr.probeSize()
	return rr
}

func (rr *remoteRasterReader) probeSize() int64 {
	if rr.client == nil {
		return -1
	}
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(rr.url)
	req.Header.SetMethod("HEAD")
	if err := rr.client.Do(req, resp); err != nil {
		return -1
	}
	if n := resp.Header.ContentLength(); n > 0 {
		return int64(n)
	}
	return -1
}

// Read satisfies io.Reader, serving from the read-ahead buffer when
// possible and falling back to a fresh ranged fetch otherwise.
func (rr *remoteRasterReader) Read(p []byte) (n int, err error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	if rr.size > 0 && rr.pos >= rr.size {
		return 0, io.EOF
	}

	toRead := len(p)
	if rr.size > 0 && rr.pos+int64(toRead) > rr.size {
		toRead = int(rr.size - rr.pos)
	}

	if rr.buffer != nil && rr.pos >= rr.bufferStart && rr.pos < rr.bufferEnd {
		bufOff := int(rr.pos - rr.bufferStart)
		available := int(rr.bufferEnd - rr.pos)

		if available >= toRead {
			n = copy(p[:toRead], rr.buffer[bufOff:bufOff+toRead])
			rr.pos += int64(n)
			return n, nil
		}

		n = copy(p[:available], rr.buffer[bufOff:])
		rr.pos += int64(n)
		nn, err := rr.fetchInto(p[n:n+(toRead-n)], toRead-n)
		return n + nn, err
	}

	return rr.fetchWithReadAhead(p, toRead)
}

// fetchWithReadAhead fetches a readAhead-sized window starting at the
// current position and caches it for subsequent sequential reads.
func (rr *remoteRasterReader) fetchWithReadAhead(p []byte, toRead int) (n int, err error) {
	fetchSize := remoteReadAhead
	if fetchSize < toRead {
		fetchSize = toRead
	}
	if rr.size > 0 && rr.pos+int64(fetchSize) > rr.size {
		fetchSize = int(rr.size - rr.pos)
	}

	data, err := rr.fetchRange(rr.pos, rr.pos+int64(fetchSize)-1)
	if err != nil {
		return 0, err
	}

	if len(data) > toRead {
		if cap(rr.buffer) >= len(data) {
			rr.buffer = rr.buffer[:len(data)]
		} else {
			rr.buffer = make([]byte, len(data))
		}
		copy(rr.buffer, data)
		rr.bufferStart = rr.pos
		rr.bufferEnd = rr.pos + int64(len(data))
	}

	if len(data) < toRead {
		toRead = len(data)
	}
	n = copy(p[:toRead], data[:toRead])
	if n == 0 && len(data) == 0 {
		return 0, io.EOF
	}
	rr.pos += int64(n)
	return n, nil
}

// fetchInto fetches exactly toRead bytes at the current position without
// populating the read-ahead buffer, for the tail of a read that spilled
// past what was already buffered.
func (rr *remoteRasterReader) fetchInto(p []byte, toRead int) (n int, err error) {
	data, err := rr.fetchRange(rr.pos, rr.pos+int64(toRead)-1)
	if err != nil {
		return 0, err
	}
	if len(data) < toRead {
		toRead = len(data)
	}
	n = copy(p[:toRead], data[:toRead])
	rr.pos += int64(n)
	return n, nil
}

func (rr *remoteRasterReader) fetchRange(start, end int64) ([]byte, error) {
	if rr.size > 0 && end >= rr.size {
		end = rr.size - 1
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(rr.url)
	req.Header.SetMethod("GET")
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	if err := rr.client.Do(req, resp); err != nil {
		return nil, err
	}
	if code := resp.StatusCode(); code != fasthttp.StatusPartialContent && code != fasthttp.StatusOK {
		return nil, fmt.Errorf("source: unexpected status %d ranging %s", code, rr.url)
	}

	body := resp.Body()
	result := make([]byte, len(body))
	copy(result, body)
	return result, nil
}

// Seek satisfies io.Seeker, invalidating the read-ahead buffer on any jump
// outside its currently cached window.
func (rr *remoteRasterReader) Seek(offset int64, whence int) (int64, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = rr.pos + offset
	case io.SeekEnd:
		if rr.size < 0 {
			return 0, fmt.Errorf("source: cannot seek from end, size unknown for %s", rr.url)
		}
		newPos = rr.size + offset
	default:
		return 0, fmt.Errorf("source: invalid whence %d", whence)
	}
	if newPos < 0 {
		return 0, fmt.Errorf("source: negative seek position %d", newPos)
	}

	if rr.buffer != nil && (newPos < rr.bufferStart || newPos >= rr.bufferEnd) {
		rr.bufferStart, rr.bufferEnd = -1, -1
	}
	rr.pos = newPos
	return rr.pos, nil
}

package session

import (
	"io"

	"github.com/halvardtech/itv2link/pkg/tlink"
)

// frameReader accumulates bytes from an io.Reader and yields complete
// TLink packets (trailing 0x7F included) one at a time, mirroring the
// StreamReader role in the teacher's pkg/message/stream.go but keyed
// to tlink.Extractor instead of a length prefix.
type frameReader struct {
	r         io.Reader
	extractor tlink.Extractor
	buf       []byte
	chunk     []byte
}

func newFrameReader(r io.Reader, extractor tlink.Extractor) *frameReader {
	return &frameReader{
		r:         r,
		extractor: extractor,
		chunk:     make([]byte, 4096),
	}
}

// ReadPacket blocks until one complete TLink packet is available,
// reading from the underlying io.Reader as needed.
func (f *frameReader) ReadPacket() ([]byte, error) {
	for {
		packet, consumed, err := f.extractor.TryExtractPacket(f.buf)
		if err == nil {
			out := append([]byte(nil), packet...)
			f.buf = append([]byte(nil), f.buf[consumed:]...)
			return out, nil
		}
		if err != tlink.ErrNeedMore {
			return nil, err
		}

		n, rerr := f.r.Read(f.chunk)
		if n > 0 {
			f.buf = append(f.buf, f.chunk[:n]...)
		}
		if rerr != nil {
			return nil, rerr
		}
	}
}

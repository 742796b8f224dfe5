package log

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	kitlog "github.com/go-kit/log"
	kitlevel "github.com/go-kit/log/level"
	"github.com/go-logfmt/logfmt"
)

type fmtEncoder struct {
	*logfmt.Encoder
	buf bytes.Buffer
}

func (e *fmtEncoder) Reset() {
	e.Encoder.Reset()
	e.buf.Reset()
}

var fmtEncoderPool = sync.Pool{
	New: func() interface{} {
		var enc fmtEncoder
		enc.Encoder = logfmt.NewEncoder(&enc.buf)
		return &enc
	},
}

type fmtLogger struct {
	w io.Writer
}

// NewFmtLogger returns a logger that encodes keyvals to the Writer in
// the following format:
//
//	I[2016-05-02|11:06:44.322] Delivered block                module=blockpull height=12 hash=...
//
// The level letter, timestamp, message and module are pulled out of keyvals;
// everything else is logfmt encoded. Each log event produces no more than
// one call to w.Write. The passed Writer must be safe for concurrent use by
// multiple goroutines if the returned Logger will be used concurrently.
func NewFmtLogger(w io.Writer) kitlog.Logger {
	return &fmtLogger{w}
}

func (l fmtLogger) Log(keyvals ...interface{}) error {
	enc := fmtEncoderPool.Get().(*fmtEncoder)
	enc.Reset()
	defer fmtEncoderPool.Put(enc)

	lvl := "none"
	msg := ""
	module := ""

	// keys handled by the prefix are skipped below
	skip := make(map[int]struct{}, 3)

	for i := 0; i < len(keyvals)-1; i += 2 {
		switch keyvals[i] {
		case kitlevel.Key():
			skip[i] = struct{}{}
			switch v := keyvals[i+1].(type) {
			case string:
				lvl = v
			case kitlevel.Value:
				lvl = v.String()
			default:
				return fmt.Errorf("level value of unknown type %T", v)
			}
		case msgKey:
			skip[i] = struct{}{}
			msg = fmt.Sprint(keyvals[i+1])
		case moduleKey:
			skip[i] = struct{}{}
			module = fmt.Sprint(keyvals[i+1])
		}
	}

	fmt.Fprintf(&enc.buf, "%c[%s] %-44s ", lvl[0]-32, time.Now().Format("2006-01-02|15:04:05.000"), msg)

	if module != "" {
		enc.buf.WriteString("module=" + module + " ")
	}

	for i := 0; i < len(keyvals)-1; i += 2 {
		if _, ok := skip[i]; ok {
			continue
		}
		err := enc.EncodeKeyval(keyvals[i], keyvals[i+1])
		if errors.Is(err, logfmt.ErrUnsupportedValueType) {
			err = enc.EncodeKeyval(keyvals[i], fmt.Sprintf("%+v", keyvals[i+1]))
		}
		if err != nil {
			return err
		}
	}

	if err := enc.EndRecord(); err != nil {
		return err
	}

	_, err := l.w.Write(enc.buf.Bytes())
	return err
}

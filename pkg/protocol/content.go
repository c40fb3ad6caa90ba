package protocol

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

// MaxQueryContent bounds an inflated query payload (16MB).
const MaxQueryContent = 16 << 20

var ErrContentTooLarge = errors.New("protocol: query content too large")

// QueryContent returns the payload of a query. Large answers arrive wrapped
// as <data query_name='...' compressedData='...' originalSize='...'/>, a
// base64 zlib stream, which is inflated here. Any other payload is returned
// unchanged. An empty query yields an empty payload.
func QueryContent(inner []byte) ([]byte, error) {
	if len(bytes.TrimSpace(inner)) == 0 {
		return nil, nil
	}

	dec := xml.NewDecoder(bytes.NewReader(inner))
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return inner, nil
			}
			return nil, fmt.Errorf("protocol: query content: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if se.Name.Local != "data" {
			return inner, nil
		}

		var compressed string
		for _, a := range se.Attr {
			if a.Name.Local == "compressedData" {
				compressed = a.Value
			}
		}
		if compressed == "" {
			return inner, nil
		}
		return inflate(compressed)
	}
}

func inflate(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("protocol: decode compressed data: %w", err)
	}
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("protocol: inflate compressed data: %w", err)
	}
	defer func() { _ = zr.Close() }()

	out, err := io.ReadAll(io.LimitReader(zr, MaxQueryContent+1))
	if err != nil {
		return nil, fmt.Errorf("protocol: inflate compressed data: %w", err)
	}
	if len(out) > MaxQueryContent {
		return nil, ErrContentTooLarge
	}
	return out, nil
}

// Compress wraps a payload the way the backend does for large answers.
func Compress(queryName string, payload []byte) (string, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return "", fmt.Errorf("protocol: compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("protocol: compress: %w", err)
	}
	return element("data", []attr{
		{"query_name", queryName},
		{"compressedData", base64.StdEncoding.EncodeToString(buf.Bytes())},
		{"originalSize", fmt.Sprint(len(payload))},
	}, ""), nil
}

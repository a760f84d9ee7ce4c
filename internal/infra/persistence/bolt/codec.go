package bolt

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"bifrost/pkg/domain"
)

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// encodeDocument packs doc with sorted keys and compresses the result.
func encodeDocument(doc domain.Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	err := enc.Encode(map[string]any(doc))
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, fmt.Errorf("msgpack encode: %w", err)
	}
	return zstdEncoder.EncodeAll(buf.Bytes(), nil), nil
}

// decodeDocument reverses encodeDocument. Integers written by other tools
// are widened back to float64 by normalization.
func decodeDocument(raw []byte) (domain.Document, error) {
	plain, err := zstdDecoder.DecodeAll(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	var m map[string]any
	if err := msgpack.Unmarshal(plain, &m); err != nil {
		return nil, fmt.Errorf("msgpack decode: %w", err)
	}
	return domain.NormalizeDocument(m)
}

func encodeIDs(ids []string) ([]byte, error) {
	return msgpack.Marshal(ids)
}

func decodeIDs(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var ids []string
	if err := msgpack.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("decode name index: %w", err)
	}
	return ids, nil
}

package stores

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/openfroyo/extconf/pkg/col"
)

// Region snapshots are deterministic CBOR compressed with zstd. The
// digest is taken over the CBOR bytes, so equal regions have equal
// digests whatever the compression level.

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("stores: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
	}.DecMode()
	if err != nil {
		panic("stores: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("stores: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("stores: zstd decoder initialization failed: " + err.Error())
	}
}

// encodeSnapshot returns the stored form of region and its digest.
func encodeSnapshot(region map[string]interface{}) (blob []byte, digest string, err error) {
	if region == nil {
		return nil, "", nil
	}
	raw, err := encMode.Marshal(region)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode region snapshot: %w", err)
	}
	return zstdEncoder.EncodeAll(raw, nil), col.Digest(raw), nil
}

func decodeSnapshot(blob []byte) (map[string]interface{}, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	raw, err := zstdDecoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress region snapshot: %w", err)
	}
	var region map[string]interface{}
	if err := decMode.Unmarshal(raw, &region); err != nil {
		return nil, fmt.Errorf("failed to decode region snapshot: %w", err)
	}
	return region, nil
}

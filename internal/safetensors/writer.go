package safetensors

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/samcharles93/qview/internal/tensor"
)

func quantKeys(name string) []string {
	return []string{name + ".qscheme", name + ".scale", name + ".zero_point"}
}

// Entry is one named tensor to write.
type Entry struct {
	Name   string
	Tensor *tensor.Tensor
}

// Write encodes entries, in order, as a safetensors image. meta is merged
// into the header metadata; quantization keys for quantized entries take
// precedence over it.
func Write(w io.Writer, entries []Entry, meta map[string]string) error {
	header := make(map[string]any, len(entries)+1)
	metadata := make(map[string]string, len(meta))
	maps.Copy(metadata, meta)

	payloads := make([][]byte, 0, len(entries))
	var off int64
	for _, e := range entries {
		if e.Name == "" || e.Name == metadataKey {
			return fmt.Errorf("safetensors: invalid tensor name %q", e.Name)
		}
		if _, dup := header[e.Name]; dup {
			return fmt.Errorf("safetensors: duplicate tensor name %q", e.Name)
		}
		if e.Tensor == nil {
			return fmt.Errorf("safetensors: tensor %s is nil", e.Name)
		}
		t := e.Tensor.Contiguous()
		name, err := t.DType().SafetensorsName()
		if err != nil {
			return fmt.Errorf("tensor %s: %w", e.Name, err)
		}
		data := t.Bytes()
		shape := t.Shape()
		if shape == nil {
			shape = []int{}
		}
		header[e.Name] = tensorHeader{
			DType:       name,
			Shape:       shape,
			DataOffsets: []int64{off, off + int64(len(data))},
		}
		off += int64(len(data))
		payloads = append(payloads, data)

		if !t.IsQuantized() {
			for _, k := range quantKeys(e.Name) {
				delete(metadata, k)
			}
			continue
		}
		scale, err := t.QScale()
		if err != nil {
			return fmt.Errorf("tensor %s: %w", e.Name, err)
		}
		zp, _ := t.QZeroPoint()
		keys := quantKeys(e.Name)
		metadata[keys[0]] = string(tensor.PerTensorAffine)
		metadata[keys[1]] = strconv.FormatFloat(scale, 'g', -1, 64)
		metadata[keys[2]] = strconv.FormatInt(zp, 10)
	}
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}

	hdr, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("safetensors: encode header: %w", err)
	}
	// Pad with spaces so the data region starts 8-byte aligned.
	for len(hdr)%8 != 0 {
		hdr = append(hdr, ' ')
	}

	bw := bufio.NewWriter(w)
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(hdr)))
	if _, err := bw.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := bw.Write(hdr); err != nil {
		return err
	}
	for _, p := range payloads {
		if _, err := bw.Write(p); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile writes entries to path atomically via a temp file in the same
// directory.
func WriteFile(path string, entries []Entry, meta map[string]string) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	if err = Write(tmp, entries, meta); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

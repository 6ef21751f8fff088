// Package snapshots carga series históricas de mercado para el replay.
package snapshots

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alejandrodnm/edgebot/internal/domain"
)

// maxLineBytes limita el tamaño de una línea JSONL (un snapshot).
const maxLineBytes = 16 << 20

// LoadFile lee snapshots de un archivo .jsonl (uno por línea) o .json (array).
func LoadFile(path string) ([]domain.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("snapshots.LoadFile: %w", err)
	}
	defer f.Close()

	var snaps []domain.Snapshot
	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		snaps, err = DecodeJSONL(f)
	} else {
		snaps, err = DecodeJSON(f)
	}
	if err != nil {
		return nil, fmt.Errorf("snapshots.LoadFile %s: %w", path, err)
	}
	return snaps, nil
}

// DecodeJSON lee un array JSON de snapshots.
func DecodeJSON(r io.Reader) ([]domain.Snapshot, error) {
	var snaps []domain.Snapshot
	if err := json.NewDecoder(r).Decode(&snaps); err != nil {
		return nil, fmt.Errorf("decode snapshot array: %w", err)
	}
	return snaps, Validate(snaps)
}

// DecodeJSONL lee un snapshot por línea; las líneas vacías se ignoran.
func DecodeJSONL(r io.Reader) ([]domain.Snapshot, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var snaps []domain.Snapshot
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var s domain.Snapshot
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		snaps = append(snaps, s)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return snaps, Validate(snaps)
}

// Validate normaliza y valida cada snapshot y exige timestamps estrictamente
// crecientes. Los snapshots sin sequence reciben su posición en la serie.
func Validate(snaps []domain.Snapshot) error {
	if len(snaps) == 0 {
		return fmt.Errorf("no snapshots found")
	}
	for i := range snaps {
		s := &snaps[i]
		if s.Sequence == 0 {
			s.Sequence = int64(i)
		}
		s.Timestamp = s.Timestamp.UTC()
		if err := s.Validate(); err != nil {
			return err
		}
		if i > 0 && !s.Timestamp.After(snaps[i-1].Timestamp) {
			return fmt.Errorf("snapshot %d at %s is not after previous %s",
				s.Sequence, s.Timestamp.Format(time.RFC3339), snaps[i-1].Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}

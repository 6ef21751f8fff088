package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/alejandrodnm/edgebot/internal/domain"
)

// JSONFileStore guarda el EngineState completo en un único archivo JSON.
// Save escribe un temporal en el mismo directorio, hace fsync y lo renombra
// sobre el destino: un lector nunca ve un archivo a medio escribir.
type JSONFileStore struct {
	path string
	mu   sync.Mutex
}

// NewJSONFileStore crea un store sobre path. El archivo no tiene que existir.
func NewJSONFileStore(path string) *JSONFileStore {
	return &JSONFileStore{path: path}
}

// Path devuelve la ruta del archivo de estado.
func (s *JSONFileStore) Path() string {
	return s.path
}

// Load lee el estado. Un archivo inexistente es un estado vacío; un archivo
// ilegible o que viola invariantes es domain.ErrStateCorrupt.
func (s *JSONFileStore) Load(_ context.Context) (*domain.EngineState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.NewEngineState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage.Load: read %q: %w", s.path, err)
	}
	return decodeState(data)
}

// Save reemplaza el archivo de forma atómica.
func (s *JSONFileStore) Save(_ context.Context, state *domain.EngineState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("storage.Save: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage.Save: mkdir %q: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("storage.Save: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op tras el rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("storage.Save: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("storage.Save: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage.Save: close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("storage.Save: rename: %w", err)
	}
	syncDir(dir)
	return nil
}

// Close no hace nada: el archivo solo está abierto durante Save.
func (s *JSONFileStore) Close() error { return nil }

// decodeState parsea y valida un snapshot serializado.
func decodeState(data []byte) (*domain.EngineState, error) {
	st := domain.NewEngineState()
	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("storage: %w: %v", domain.ErrStateCorrupt, err)
	}
	if st.SchemaVersion > domain.StateSchemaVersion {
		return nil, fmt.Errorf("storage: %w: schema_version %d newer than supported %d",
			domain.ErrStateCorrupt, st.SchemaVersion, domain.StateSchemaVersion)
	}
	if st.SchemaVersion == 0 {
		st.SchemaVersion = domain.StateSchemaVersion
	}
	if st.OpenPositions == nil {
		st.OpenPositions = []domain.Position{}
	}
	if st.ClosedPositions == nil {
		st.ClosedPositions = []domain.Position{}
	}
	if err := st.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("storage: %w: %v", domain.ErrStateCorrupt, err)
	}
	return st, nil
}

// syncDir persiste la entrada del rename. Best effort: no todos los
// sistemas de archivos permiten fsync sobre directorios.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	d.Close()
}

package cpu

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/df-mc/goleveldb/leveldb"
	"github.com/df-mc/goleveldb/leveldb/opt"
	"github.com/df-mc/goleveldb/leveldb/storage"
	"github.com/nickgildea/leven/terrain/cube"
)

// store keeps the density fields of a backend in an in-memory LevelDB database. Nothing is written to disk: the
// store only lives as long as the backend.
type store struct {
	db *leveldb.DB
}

func openStore() (*store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), &opt.Options{NoSync: true})
	if err != nil {
		return nil, fmt.Errorf("open field store: %w", err)
	}
	return &store{db: db}, nil
}

func fieldKey(min cube.Pos, size int) []byte {
	key := make([]byte, 32)
	binary.BigEndian.PutUint64(key[0:], uint64(int64(min[0])))
	binary.BigEndian.PutUint64(key[8:], uint64(int64(min[1])))
	binary.BigEndian.PutUint64(key[16:], uint64(int64(min[2])))
	binary.BigEndian.PutUint64(key[24:], uint64(size))
	return key
}

// load returns the field stored for the chunk passed. ok is false if no field was stored yet.
func (s *store) load(min cube.Pos, size int) (f *field, ok bool, err error) {
	data, err := s.db.Get(fieldKey(min, size), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("read field %v/%v: %w", min, size, err)
	}
	f, err = decodeField(data)
	if err != nil {
		return nil, false, fmt.Errorf("decode field %v/%v: %w", min, size, err)
	}
	return f, true, nil
}

func (s *store) save(f *field) error {
	data, err := f.encode()
	if err != nil {
		return fmt.Errorf("encode field %v/%v: %w", f.min, f.size, err)
	}
	if err := s.db.Put(fieldKey(f.min, f.size), data, nil); err != nil {
		return fmt.Errorf("write field %v/%v: %w", f.min, f.size, err)
	}
	return nil
}

func (s *store) close() error {
	return s.db.Close()
}

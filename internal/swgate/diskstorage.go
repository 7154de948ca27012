package swgate

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Key layout:
//
//	n:<name>                  cache name marker (gob diskCacheMeta)
//	e:<name>\x00<cache key>   entry (gob Response)
const (
	namePrefix  = "n:"
	entryPrefix = "e:"
)

type diskCacheMeta struct {
	Seq int64
}

// DiskStorage keeps cache generations in a leveldb database so they survive
// restarts.
type DiskStorage struct {
	maxEntry int64
	db       *leveldb.DB

	mu  sync.Mutex
	seq int64
}

func NewDiskStorage(path string, maxEntry int64) (*DiskStorage, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	d := &DiskStorage{maxEntry: maxEntry, db: db}
	metas, err := d.loadNames()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	for _, m := range metas {
		if m.Seq > d.seq {
			d.seq = m.Seq
		}
	}
	return d, nil
}

func (d *DiskStorage) Close() error {
	return d.db.Close()
}

func (d *DiskStorage) loadNames() (map[string]diskCacheMeta, error) {
	it := d.db.NewIterator(util.BytesPrefix([]byte(namePrefix)), nil)
	defer it.Release()

	out := map[string]diskCacheMeta{}
	for it.Next() {
		name := string(bytes.TrimPrefix(it.Key(), []byte(namePrefix)))
		var meta diskCacheMeta
		if err := decodeGob(it.Value(), &meta); err != nil {
			continue
		}
		out[name] = meta
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *DiskStorage) Open(ctx context.Context, name string) (Cache, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	ok, err := d.db.Has([]byte(namePrefix+name), nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		d.seq++
		b, err := encodeGob(diskCacheMeta{Seq: d.seq})
		if err != nil {
			return nil, err
		}
		if err := d.db.Put([]byte(namePrefix+name), b, nil); err != nil {
			return nil, err
		}
	}
	return &diskCache{name: name, storage: d}, nil
}

func (d *DiskStorage) Delete(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	ok, err := d.db.Has([]byte(namePrefix+name), nil)
	if err != nil || !ok {
		return false, err
	}

	batch := new(leveldb.Batch)
	batch.Delete([]byte(namePrefix + name))
	it := d.db.NewIterator(util.BytesPrefix(entryKeyPrefix(name)), nil)
	for it.Next() {
		batch.Delete(append([]byte(nil), it.Key()...))
	}
	it.Release()
	if err := it.Error(); err != nil {
		return false, err
	}
	if err := d.db.Write(batch, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (d *DiskStorage) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	metas, err := d.loadNames()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(metas))
	for name := range metas {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool {
		return metas[out[i]].Seq < metas[out[j]].Seq
	})
	return out, nil
}

func (d *DiskStorage) Has(_ context.Context, name string) (bool, error) {
	return d.db.Has([]byte(namePrefix+name), nil)
}

// EntryCount counts entries stored under name.
func (d *DiskStorage) EntryCount(name string) int {
	it := d.db.NewIterator(util.BytesPrefix(entryKeyPrefix(name)), nil)
	defer it.Release()
	n := 0
	for it.Next() {
		n++
	}
	return n
}

func entryKeyPrefix(name string) []byte {
	return []byte(entryPrefix + name + "\x00")
}

type diskCache struct {
	name    string
	storage *DiskStorage
}

func (c *diskCache) key(req *Request) []byte {
	return append(entryKeyPrefix(c.name), req.CacheKey()...)
}

func (c *diskCache) Match(ctx context.Context, req *Request) (*Response, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if !req.isGet() {
		return nil, false, nil
	}
	b, err := c.storage.db.Get(c.key(req), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var ent Response
	if err := decodeGob(b, &ent); err != nil {
		return nil, false, fmt.Errorf("decode entry %q: %w", req.CacheKey(), err)
	}
	return &ent, true, nil
}

func (c *diskCache) Put(ctx context.Context, req *Request, resp *Response) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ent, err := prepareEntry(req, resp, c.storage.maxEntry)
	if err != nil {
		return err
	}
	b, err := encodeGob(*ent)
	if err != nil {
		return err
	}

	// A concurrent Delete of this generation must not leave orphans behind.
	c.storage.mu.Lock()
	defer c.storage.mu.Unlock()
	ok, err := c.storage.db.Has([]byte(namePrefix+c.name), nil)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("put %q into %s: %w", req.CacheKey(), c.name, ErrCacheNotFound)
	}
	return c.storage.db.Put(c.key(req), b, nil)
}

// ---- encoding ----

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v any) error {
	dec := gob.NewDecoder(bytes.NewReader(b))
	return dec.Decode(v)
}

func init() {
	// Ensure http.Header is registered for gob.
	gob.Register(http.Header{})
}

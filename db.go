package allosaur

import (
	"encoding/binary"
	"time"

	"go.dedis.ch/allosaur/accumulator"
	"go.dedis.ch/onet/v3/log"
	"go.dedis.ch/protobuf"
	"go.etcd.io/bbolt"
	"golang.org/x/xerrors"
)

const dbVersion = 1

var (
	bucketRecords = []byte("records")
	bucketSecret  = []byte("secret")
	keyTrapdoor   = []byte("trapdoor")
	keyVersion    = []byte("version")
)

// recordEntry is the stored form of an EpochRecord.
type recordEntry struct {
	Epoch     uint64
	Additions [][]byte
	Deletions [][]byte
	Value     []byte
	Delta     [][]byte
}

// MarshalBinary encodes the record with protobuf.
func (r *EpochRecord) MarshalBinary() ([]byte, error) {
	entry := recordEntry{Epoch: r.Epoch}
	var err error
	if entry.Value, err = r.Value.MarshalBinary(); err != nil {
		return nil, err
	}
	for _, a := range r.Additions {
		buf, err := a.MarshalBinary()
		if err != nil {
			return nil, err
		}
		entry.Additions = append(entry.Additions, buf)
	}
	for _, d := range r.Deletions {
		buf, err := d.MarshalBinary()
		if err != nil {
			return nil, err
		}
		entry.Deletions = append(entry.Deletions, buf)
	}
	for _, p := range r.Delta {
		buf, err := p.MarshalBinary()
		if err != nil {
			return nil, err
		}
		entry.Delta = append(entry.Delta, buf)
	}
	return protobuf.Encode(&entry)
}

// UnmarshalBinary decodes a record written by MarshalBinary.
func (r *EpochRecord) UnmarshalBinary(buf []byte) error {
	var entry recordEntry
	if err := protobuf.Decode(buf, &entry); err != nil {
		return xerrors.Errorf("%v: %w", err, ErrMalformedEncoding)
	}
	res := EpochRecord{Epoch: entry.Epoch}
	var err error
	if res.Value, err = accumulator.ValueFromBytes(entry.Value); err != nil {
		return err
	}
	if res.Additions, err = decodeElements(entry.Additions); err != nil {
		return err
	}
	if res.Deletions, err = decodeElements(entry.Deletions); err != nil {
		return err
	}
	for _, b := range entry.Delta {
		v, err := accumulator.ValueFromBytes(b)
		if err != nil {
			return err
		}
		res.Delta = append(res.Delta, v.Point())
	}
	*r = res
	return nil
}

func decodeElements(list [][]byte) ([]accumulator.Element, error) {
	var res []accumulator.Element
	for _, b := range list {
		e, err := accumulator.ElementFromBytes(b)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, nil
}

// Store keeps the trapdoor and the records of a server in a bbolt file.
// It implements Journal.
type Store struct {
	db *bbolt.DB
}

// OpenStore opens or creates the store at path.
func OpenStore(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, ErrorOrNil(err, "opening store")
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketRecords, bucketSecret} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		b := tx.Bucket(bucketSecret)
		v := b.Get(keyVersion)
		switch {
		case v == nil:
			return b.Put(keyVersion, epochKey(dbVersion))
		case len(v) != 8:
			return xerrors.Errorf("store version of %d bytes: %w", len(v), ErrCorruptState)
		case binary.BigEndian.Uint64(v) != dbVersion:
			return xerrors.Errorf("store version %d, need %d", binary.BigEndian.Uint64(v), dbVersion)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, ErrorOrNil(err, "initializing store")
	}
	return &Store{db: db}, nil
}

// Close closes the file.
func (s *Store) Close() error {
	return s.db.Close()
}

func epochKey(e uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], e)
	return buf[:]
}

// SaveTrapdoor stores the trapdoor. An existing one is never overwritten.
func (s *Store) SaveTrapdoor(td *accumulator.SecretKey) error {
	buf, err := td.MarshalBinary()
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSecret)
		if b.Get(keyTrapdoor) != nil {
			return xerrors.New("store already holds a trapdoor")
		}
		return b.Put(keyTrapdoor, buf)
	})
}

// LoadTrapdoor returns the stored trapdoor.
func (s *Store) LoadTrapdoor() (*accumulator.SecretKey, error) {
	var td *accumulator.SecretKey
	err := s.db.View(func(tx *bbolt.Tx) error {
		buf := tx.Bucket(bucketSecret).Get(keyTrapdoor)
		if buf == nil {
			return xerrors.New("no trapdoor in store")
		}
		var err error
		td, err = accumulator.SecretKeyFromBytes(buf)
		return err
	})
	return td, err
}

// Append stores the record of the next epoch.
func (s *Store) Append(r *EpochRecord) error {
	buf, err := r.MarshalBinary()
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		key := epochKey(r.Epoch)
		if b.Get(key) != nil {
			return xerrors.Errorf("record %d already stored", r.Epoch)
		}
		return b.Put(key, buf)
	})
}

// Records returns all stored records in epoch order.
func (s *Store) Records() ([]*EpochRecord, error) {
	var res []*EpochRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRecords).ForEach(func(k, v []byte) error {
			r := &EpochRecord{}
			if err := r.UnmarshalBinary(v); err != nil {
				return xerrors.Errorf("record %x: %w", k, err)
			}
			res = append(res, r)
			return nil
		})
	})
	return res, err
}

// Restore rebuilds the server from the store and journals its next
// records into it.
func (s *Store) Restore() (*Server, *accumulator.SecretKey, error) {
	td, err := s.LoadTrapdoor()
	if err != nil {
		return nil, nil, err
	}
	records, err := s.Records()
	if err != nil {
		return nil, nil, err
	}
	srv, err := RestoreServer(td, records)
	if err != nil {
		return nil, nil, err
	}
	srv.SetJournal(s)
	log.Lvlf2("store: loaded %d records", len(records))
	return srv, td, nil
}

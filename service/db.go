package service

import (
	"errors"
	"sync"

	"go.dedis.ch/allosaur"
	"go.dedis.ch/allosaur/accumulator"
	"go.dedis.ch/onet/v3/log"
)

const dbVersion = 1

var storageKey = []byte("storage")

// storage is what the service keeps across restarts. An authority stores
// its trapdoor and all records since epoch 0, a replica its setup and the
// records synced since.
type storage struct {
	Trapdoor []byte
	Replica  *SetupReplica
	Records  [][]byte

	sync.Mutex
}

func (st *storage) setAuthority(td *accumulator.SecretKey) error {
	buf, err := td.MarshalBinary()
	if err != nil {
		return err
	}
	st.Lock()
	defer st.Unlock()
	if st.Trapdoor != nil || st.Replica != nil {
		return errors.New("node already has a role")
	}
	st.Trapdoor = buf
	return nil
}

func (st *storage) setReplica(req *SetupReplica) error {
	st.Lock()
	defer st.Unlock()
	if st.Trapdoor != nil || st.Replica != nil {
		return errors.New("node already has a role")
	}
	st.Replica = req
	return nil
}

// trapdoor returns nil if the node is not an authority.
func (st *storage) trapdoor() *accumulator.SecretKey {
	st.Lock()
	defer st.Unlock()
	if st.Trapdoor == nil {
		return nil
	}
	td, err := accumulator.SecretKeyFromBytes(st.Trapdoor)
	if err != nil {
		log.Error("stored trapdoor:", err)
		return nil
	}
	return td
}

func (st *storage) appendRecords(records ...[]byte) {
	st.Lock()
	defer st.Unlock()
	st.Records = append(st.Records, records...)
}

// dropRecords removes the last n records.
func (st *storage) dropRecords(n int) {
	st.Lock()
	defer st.Unlock()
	st.Records = st.Records[:len(st.Records)-n]
}

// saves all data.
func (s *Service) save() error {
	s.storage.Lock()
	defer s.storage.Unlock()
	err := s.Save(storageKey, s.storage)
	if err != nil {
		log.Error("Couldn't save data:", err)
		return allosaur.WrapError(err)
	}
	return nil
}

// Tries to load the configuration and restores the role of the node if it
// finds a valid config-file.
func (s *Service) tryLoad() error {
	s.storage = &storage{}
	ver, err := s.LoadVersion()
	if err != nil {
		return err
	}
	if ver < dbVersion {
		if err = s.save(); err != nil {
			return err
		}
		return s.SaveVersion(dbVersion)
	}
	msg, err := s.Load(storageKey)
	if err != nil {
		return err
	}
	if msg == nil {
		return nil
	}
	var ok bool
	s.storage, ok = msg.(*storage)
	if !ok {
		return errors.New("data of wrong type")
	}
	return s.restore()
}

// restore rebuilds the authority or the replica from the storage.
func (s *Service) restore() error {
	records, err := decodeRecords(s.storage.Records)
	if err != nil {
		return allosaur.ErrorOrNil(err, "stored records")
	}
	switch {
	case s.storage.Trapdoor != nil:
		td := s.storage.trapdoor()
		if td == nil {
			return errors.New("invalid stored trapdoor")
		}
		srv, err := allosaur.RestoreServer(td, records)
		if err != nil {
			return err
		}
		return s.setAuthority(srv, td)
	case s.storage.Replica != nil:
		req := s.storage.Replica
		pk, err := accumulator.PublicKeyFromBytes(req.PublicKey)
		if err != nil {
			return err
		}
		sh := &allosaur.TrapdoorShare{}
		if err := sh.UnmarshalBinary(req.Share); err != nil {
			return err
		}
		v, err := accumulator.ValueFromBytes(req.Value)
		if err != nil {
			return err
		}
		replica := allosaur.NewAccumulator(pk, req.Epoch, v)
		if err := replica.Append(records...); err != nil {
			return allosaur.ErrorOrNil(err, "stored records")
		}
		return s.setReplica(allosaur.NewThresholdServer(sh, replica))
	}
	return nil
}

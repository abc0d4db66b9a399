package service

// PROTOSTART
// package allosaur;
//
// option java_package = "ch.epfl.dedis.lib.proto";
// option java_outer_classname = "Allosaur";

// ***
// Admin calls, only accepted from loopback
// ***

// CreateAccumulator asks a node to draw a fresh trapdoor and become the
// authority of a new, empty accumulator.
type CreateAccumulator struct {
}

// CreateAccumulatorReply holds the public key of the new accumulator and
// its value at epoch 0.
type CreateAccumulatorReply struct {
	PublicKey []byte
	Value     []byte
}

// DealShares asks the authority to share its trapdoor among Total replicas.
// Any Threshold of them compute updates of up to MaxBatch additions and
// MaxBatch deletions per chunk.
type DealShares struct {
	Threshold int
	Total     int
	MaxBatch  int
}

// DealSharesReply holds the secret shares and the commitments to the
// sharing of the trapdoor, in G2.
type DealSharesReply struct {
	Shares  [][]byte
	Commits [][]byte
	// Epoch and Value are the state the replicas start from.
	Epoch uint64
	Value []byte
}

// SetupReplica hands a trapdoor share to a node. The share is checked
// against the commitments before being stored.
type SetupReplica struct {
	PublicKey []byte
	Share     []byte
	Commits   [][]byte
	Epoch     uint64
	Value     []byte
}

// SetupReplicaReply returns the index of the stored share.
type SetupReplicaReply struct {
	Index int
}

// AddRequest accumulates the elements in a single epoch.
type AddRequest struct {
	Elements [][]byte
}

// DeleteRequest removes the elements in a single epoch.
type DeleteRequest struct {
	Elements [][]byte
}

// ChangeReply is returned after an addition or a deletion. Record is the
// encoded record of the new epoch, empty if nothing changed.
type ChangeReply struct {
	Epoch  uint64
	Record []byte
}

// SyncRequest appends records to a replica.
type SyncRequest struct {
	Records [][]byte
}

// SyncReply returns the epoch of the replica after the sync.
type SyncReply struct {
	Epoch uint64
}

// ***
// Public calls
// ***

// WitnessRequest asks the authority for the witness of an element.
type WitnessRequest struct {
	Element []byte
}

// WitnessReply holds the witness and the public data of its epoch.
type WitnessReply struct {
	Witness   []byte
	PublicKey []byte
	Value     []byte
}

// UpdateRequest asks the authority for the update of the epochs from From
// to To.
type UpdateRequest struct {
	From uint64
	To   uint64
}

// UpdateReply holds the encoded update polynomial.
type UpdateReply struct {
	Update []byte
}

// ContributeRequest asks a replica for its share of an update.
type ContributeRequest struct {
	From uint64
	To   uint64
}

// ContributeReply holds the encoded contribution.
type ContributeReply struct {
	Contribution []byte
}

// SplitUpdateRequest holds an encoded split request. It carries shares of
// the element of the user.
type SplitUpdateRequest struct {
	Request []byte
}

// SplitUpdateReply holds the encoded split response.
type SplitUpdateReply struct {
	Response []byte
}

// RecordsRequest asks for the records of the epochs in (From, To].
type RecordsRequest struct {
	From uint64
	To   uint64
}

// RecordsReply holds the encoded records.
type RecordsReply struct {
	Records [][]byte
}

// StatusRequest asks a node about its role and state.
type StatusRequest struct {
}

// StatusReply describes the node. Role is "authority", "replica" or empty.
// Members is only known to the authority and Index only to a replica.
type StatusReply struct {
	Role      string
	Epoch     uint64
	PublicKey []byte
	Value     []byte
	Members   int
	Index     int
}

/*
Package allosaur implements a dynamic pairing-based accumulator with
batched witness updates, a threshold variant of the updates and
zero-knowledge proofs of membership.

A Server holds the active set. Adding or deleting members moves it to the
next epoch. Every operation that needs the trapdoor takes it as an
argument:

	td := accumulator.NewSecretKey(random.New())
	srv := allosaur.NewServer(td)
	srv.Add(td, alice)
	w, _ := srv.Wit(td, alice)

A witness of an old epoch is moved to the current one with a single
UpdatePolynomial, whatever the number of epochs in between:

	u, _ := srv.Update(td, w.Epoch, srv.Epoch())
	w, err = u.Apply(w)

The same update can be computed by t out of n ThresholdServers holding
shares of the powers of the trapdoor, combined by a Coordinator, or
evaluated by SplitResponders on shares of the element of the user, so that
no group of less than t responders learns anything about the element.

Finally a member proves that it is accumulated without revealing its
element nor its witness:

	proof, _ := allosaur.Prove(w, srv.Public(), nonce, random.New())
	ok := allosaur.VerifyProof(proof, srv.Public(), nonce)
*/
package allosaur

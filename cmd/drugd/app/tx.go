package app

import (
	"github.com/iov-one/weave"
	"github.com/iov-one/weave/x/sigs"
)

// TxDecoder creates a Tx and unmarshals bytes into it
func TxDecoder(bz []byte) (weave.Tx, error) {
	tx := new(Tx)
	err := tx.Unmarshal(bz)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// make sure tx fulfills all interfaces
var _ weave.Tx = (*Tx)(nil)
var _ sigs.SignedTx = (*Tx)(nil)

// GetMsg switches over all types defined in the protobuf file
func (tx *Tx) GetMsg() (weave.Msg, error) {
	return weave.ExtractMsgFromSum(tx.GetSum())
}

// GetSignBytes returns the bytes to sign. Signatures are not part of the
// signed data.
func (tx *Tx) GetSignBytes() ([]byte, error) {
	sigs := tx.Signatures
	tx.Signatures = nil

	bz, err := tx.Marshal()

	tx.Signatures = sigs
	return bz, err
}

package drug

import (
	"github.com/iov-one/weave"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/migration"
	"github.com/iov-one/weave/orm"
	"github.com/iov-one/weave/x"
)

// Verifier reports whether an address belongs to a verified supply chain
// participant. It must never fail: an unknown address is not verified.
type Verifier interface {
	IsVerified(db weave.ReadOnlyKVStore, addr weave.Address) bool
}

func RegisterQuery(qr weave.QueryRouter) {
	NewDrugBucket().Register("drugs", qr)
}

func RegisterRoutes(r weave.Registry, auth x.Authenticator, participants Verifier) {
	r = migration.SchemaMigratingRegistry("drug", r)

	drugs := NewDrugBucket()

	r.Handle(&ManufactureDrugMsg{}, &manufactureDrugHandler{
		auth:  auth,
		drugs: drugs,
	})
	r.Handle(&TransferDrugMsg{}, &transferDrugHandler{
		auth:  auth,
		drugs: drugs,
	})
	r.Handle(&UpdateDrugStageMsg{}, &updateDrugStageHandler{
		auth:  auth,
		drugs: drugs,
	})
	r.Handle(&RecordSupplyChainStepMsg{}, &recordSupplyChainStepHandler{
		auth:         auth,
		drugs:        drugs,
		participants: participants,
	})
}

type manufactureDrugHandler struct {
	auth  x.Authenticator
	drugs orm.ModelBucket
}

func (h *manufactureDrugHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, _, err := h.validate(ctx, db, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{GasAllocated: 0}, nil
}

func (h *manufactureDrugHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, manufacturer, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	now, err := weave.BlockTime(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrState, "block time not present in context")
	}

	drug := Drug{
		Metadata:       &weave.Metadata{Schema: 1},
		Name:           msg.Name,
		BatchNumber:    msg.BatchNumber,
		ManufacturedAt: msg.ManufacturedAt,
		ExpiresAt:      msg.ExpiresAt,
		Manufacturer:   manufacturer,
		Owner:          manufacturer,
	}
	if err := drug.appendStep(manufacturer, StageManufactured, weave.AsUnixTime(now)); err != nil {
		return nil, errors.Wrap(err, "manufacturing step")
	}
	key, err := h.drugs.Put(db, nil, &drug)
	if err != nil {
		return nil, errors.Wrap(err, "cannot store drug")
	}
	return &weave.DeliverResult{Data: key}, nil
}

// validate does not require the manufacturer to be a verified participant.
// Verification is required only to record supply chain steps.
func (h *manufactureDrugHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*ManufactureDrugMsg, weave.Address, error) {
	var msg ManufactureDrugMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, nil, errors.Wrap(err, "load msg")
	}
	signer := x.AnySigner(ctx, h.auth)
	if signer == nil {
		return nil, nil, errors.Wrap(errors.ErrUnauthorized, "signature required")
	}
	return &msg, signer.Address(), nil
}

type transferDrugHandler struct {
	auth  x.Authenticator
	drugs orm.ModelBucket
}

func (h *transferDrugHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, _, err := h.validate(ctx, db, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{GasAllocated: 0}, nil
}

func (h *transferDrugHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, drug, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	drug.Owner = msg.NewOwner
	if _, err := h.drugs.Put(db, msg.DrugID, drug); err != nil {
		return nil, errors.Wrap(err, "cannot store drug")
	}
	return &weave.DeliverResult{}, nil
}

func (h *transferDrugHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*TransferDrugMsg, *Drug, error) {
	var msg TransferDrugMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, nil, errors.Wrap(err, "load msg")
	}
	var drug Drug
	if err := h.drugs.One(db, msg.DrugID, &drug); err != nil {
		return nil, nil, errors.Wrap(err, "cannot load drug")
	}
	if !h.auth.HasAddress(ctx, drug.Owner) {
		return nil, nil, errors.Wrap(errors.ErrUnauthorized, "owner signature missing")
	}
	return &msg, &drug, nil
}

type updateDrugStageHandler struct {
	auth  x.Authenticator
	drugs orm.ModelBucket
}

func (h *updateDrugStageHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	msg, drug, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	if err := advance(ctx, drug, drug.Owner, msg.Stage); err != nil {
		return nil, err
	}
	return &weave.CheckResult{GasAllocated: 0}, nil
}

func (h *updateDrugStageHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, drug, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	if err := advance(ctx, drug, drug.Owner, msg.Stage); err != nil {
		return nil, err
	}
	if _, err := h.drugs.Put(db, msg.DrugID, drug); err != nil {
		return nil, errors.Wrap(err, "cannot store drug")
	}
	return &weave.DeliverResult{}, nil
}

func (h *updateDrugStageHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*UpdateDrugStageMsg, *Drug, error) {
	var msg UpdateDrugStageMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, nil, errors.Wrap(err, "load msg")
	}
	var drug Drug
	if err := h.drugs.One(db, msg.DrugID, &drug); err != nil {
		return nil, nil, errors.Wrap(err, "cannot load drug")
	}
	if !h.auth.HasAddress(ctx, drug.Owner) {
		return nil, nil, errors.Wrap(errors.ErrUnauthorized, "owner signature missing")
	}
	return &msg, &drug, nil
}

type recordSupplyChainStepHandler struct {
	auth         x.Authenticator
	drugs        orm.ModelBucket
	participants Verifier
}

func (h *recordSupplyChainStepHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	msg, drug, actor, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	if err := advance(ctx, drug, actor, msg.Stage); err != nil {
		return nil, err
	}
	return &weave.CheckResult{GasAllocated: 0}, nil
}

func (h *recordSupplyChainStepHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, drug, actor, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	if err := advance(ctx, drug, actor, msg.Stage); err != nil {
		return nil, err
	}
	if _, err := h.drugs.Put(db, msg.DrugID, drug); err != nil {
		return nil, errors.Wrap(err, "cannot store drug")
	}
	return &weave.DeliverResult{}, nil
}

// validate authorizes the signer before the drug is loaded. A signer that is
// not a verified participant is always rejected as unauthorized, even when
// the drug does not exist.
func (h *recordSupplyChainStepHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*RecordSupplyChainStepMsg, *Drug, weave.Address, error) {
	var msg RecordSupplyChainStepMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, nil, nil, errors.Wrap(err, "load msg")
	}
	actor := h.verifiedSigner(ctx, db)
	if actor == nil {
		return nil, nil, nil, errors.Wrap(errors.ErrUnauthorized, "verified participant signature missing")
	}
	var drug Drug
	if err := h.drugs.One(db, msg.DrugID, &drug); err != nil {
		return nil, nil, nil, errors.Wrap(err, "cannot load drug")
	}
	return &msg, &drug, actor, nil
}

// verifiedSigner returns the address of the first signer that is a verified
// participant or nil.
func (h *recordSupplyChainStepHandler) verifiedSigner(ctx weave.Context, db weave.KVStore) weave.Address {
	for _, cond := range h.auth.GetConditions(ctx) {
		if addr := cond.Address(); h.participants.IsVerified(db, addr) {
			return addr
		}
	}
	return nil
}

// advance moves the drug to a new stage at the current block time. The
// change is not persisted.
func advance(ctx weave.Context, drug *Drug, actor weave.Address, stage Stage) error {
	now, err := weave.BlockTime(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrState, "block time not present in context")
	}
	return drug.appendStep(actor, stage, weave.AsUnixTime(now))
}

package participant

import (
	"github.com/iov-one/weave"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/gconf"
	"github.com/iov-one/weave/migration"
	"github.com/iov-one/weave/orm"
	"github.com/iov-one/weave/x"
)

func RegisterQuery(qr weave.QueryRouter) {
	NewParticipantBucket().Register("participants", qr)
}

func RegisterRoutes(r weave.Registry, auth x.Authenticator) {
	r = migration.SchemaMigratingRegistry("participant", r)

	participants := NewParticipantBucket()

	r.Handle(&RegisterParticipantMsg{}, &registerParticipantHandler{
		auth:         auth,
		participants: participants,
	})
	r.Handle(&VerifyParticipantMsg{}, &setVerifiedHandler{
		auth:         auth,
		participants: participants,
		verified:     true,
	})
	r.Handle(&RevokeParticipantMsg{}, &setVerifiedHandler{
		auth:         auth,
		participants: participants,
		verified:     false,
	})

	r.Handle(&UpdateConfigurationMsg{}, gconf.NewUpdateConfigurationHandler(
		"participant", &Configuration{}, auth, migration.CurrentAdmin))
}

type registerParticipantHandler struct {
	auth         x.Authenticator
	participants orm.ModelBucket
}

func (h *registerParticipantHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, _, err := h.validate(ctx, db, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{GasAllocated: 0}, nil
}

func (h *registerParticipantHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, signer, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	now, err := weave.BlockTime(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrState, "block time not present in context")
	}
	p := Participant{
		Metadata:     &weave.Metadata{Schema: 1},
		Address:      signer,
		Name:         msg.Name,
		Role:         msg.Role,
		Verified:     false,
		RegisteredAt: weave.AsUnixTime(now),
	}
	if _, err := h.participants.Put(db, signer, &p); err != nil {
		return nil, errors.Wrap(err, "cannot store participant")
	}
	return &weave.DeliverResult{Data: signer}, nil
}

func (h *registerParticipantHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*RegisterParticipantMsg, weave.Address, error) {
	var msg RegisterParticipantMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, nil, errors.Wrap(err, "load msg")
	}

	conf, err := loadConf(db)
	if err != nil {
		return nil, nil, errors.Wrap(err, "cannot load configuration")
	}
	if ok, err := matchName(conf, msg.Name); err != nil {
		return nil, nil, err
	} else if !ok {
		return nil, nil, errors.Wrapf(errors.ErrInput, "name %q does not match %q", msg.Name, conf.ValidName)
	}

	signer := x.AnySigner(ctx, h.auth)
	if signer == nil {
		return nil, nil, errors.Wrap(errors.ErrUnauthorized, "signature required")
	}
	addr := signer.Address()

	switch err := h.participants.Has(db, addr); {
	case err == nil:
		return nil, nil, errors.Wrapf(errors.ErrDuplicate, "participant %s already registered", addr)
	case errors.ErrNotFound.Is(err):
		// All good.
	default:
		return nil, nil, errors.Wrap(err, "cannot check if participant exists")
	}
	return &msg, addr, nil
}

// setVerifiedHandler grants or revokes the verification of a participant.
// Both operations are idempotent.
type setVerifiedHandler struct {
	auth         x.Authenticator
	participants orm.ModelBucket
	verified     bool
}

func (h *setVerifiedHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, _, err := h.validate(ctx, db, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{GasAllocated: 0}, nil
}

func (h *setVerifiedHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	p, authority, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	if p.Verified == h.verified {
		return &weave.DeliverResult{Data: p.Address}, nil
	}
	now, err := weave.BlockTime(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrState, "block time not present in context")
	}
	p.Verified = h.verified
	p.VerifiedBy = authority
	p.VerifiedAt = weave.AsUnixTime(now)
	if _, err := h.participants.Put(db, p.Address, p); err != nil {
		return nil, errors.Wrap(err, "cannot store participant")
	}
	return &weave.DeliverResult{Data: p.Address}, nil
}

func (h *setVerifiedHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*Participant, weave.Address, error) {
	var target weave.Address
	if h.verified {
		var msg VerifyParticipantMsg
		if err := weave.LoadMsg(tx, &msg); err != nil {
			return nil, nil, errors.Wrap(err, "load msg")
		}
		target = msg.Address
	} else {
		var msg RevokeParticipantMsg
		if err := weave.LoadMsg(tx, &msg); err != nil {
			return nil, nil, errors.Wrap(err, "load msg")
		}
		target = msg.Address
	}

	authority, err := h.authority(ctx, db)
	if err != nil {
		return nil, nil, err
	}

	var p Participant
	if err := h.participants.One(db, target, &p); err != nil {
		return nil, nil, errors.Wrapf(err, "participant %s", target)
	}
	return &p, authority, nil
}

// authority returns the address that authorizes a change of the verification
// status. That is either the configuration owner or a verified regulator.
func (h *setVerifiedHandler) authority(ctx weave.Context, db weave.KVStore) (weave.Address, error) {
	conf, err := loadConf(db)
	if err != nil {
		return nil, errors.Wrap(err, "cannot load configuration")
	}
	if h.auth.HasAddress(ctx, conf.Owner) {
		return conf.Owner, nil
	}
	for _, cond := range h.auth.GetConditions(ctx) {
		var p Participant
		if err := h.participants.One(db, cond.Address(), &p); err != nil {
			continue
		}
		if p.Verified && p.Role == RoleRegulator {
			return p.Address, nil
		}
	}
	return nil, errors.Wrap(errors.ErrUnauthorized, "registry authority signature missing")
}

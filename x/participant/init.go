package participant

import (
	"github.com/iov-one/weave"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/gconf"
)

// Initializer fulfils the Initializer interface to load data from the genesis
// file
type Initializer struct{}

var _ weave.Initializer = (*Initializer)(nil)

// FromGenesis will parse initial participant configuration and the list of
// pre-registered participants from genesis and save them to the database.
func (*Initializer) FromGenesis(opts weave.Options, params weave.GenesisParams, kv weave.KVStore) error {
	conf := Configuration{
		Metadata: &weave.Metadata{Schema: 1},
	}
	switch err := gconf.InitConfig(kv, opts, "participant", &conf); {
	default:
		// All good.
	case errors.ErrNotFound.Is(err):
		return nil
	case err != nil:
		return errors.Wrap(err, "cannot initialize gconf based configuration")
	}

	var input []struct {
		Address  weave.Address  `json:"address"`
		Name     string         `json:"name"`
		Role     string         `json:"role"`
		Verified bool           `json:"verified"`
		Since    weave.UnixTime `json:"since"`
	}
	if err := opts.ReadOptions("participant", &input); err != nil {
		return errors.Wrap(err, "cannot load participants")
	}

	participants := NewParticipantBucket()
	for i, in := range input {
		role, err := ParseRole(in.Role)
		if err != nil {
			return errors.Wrapf(err, "participant %d", i)
		}
		p := Participant{
			Metadata:     &weave.Metadata{Schema: 1},
			Address:      in.Address,
			Name:         in.Name,
			Role:         role,
			Verified:     in.Verified,
			RegisteredAt: in.Since,
		}
		if in.Verified {
			p.VerifiedBy = conf.Owner
			p.VerifiedAt = in.Since
		}
		if err := participants.Has(kv, in.Address); err == nil {
			return errors.Wrapf(errors.ErrDuplicate, "participant %d: %s", i, in.Address)
		}
		if _, err := participants.Put(kv, in.Address, &p); err != nil {
			return errors.Wrapf(err, "cannot store %d participant", i)
		}
	}
	return nil
}
